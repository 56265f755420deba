package bank

import (
	"errors"
	"testing"
)

func TestDepositAndTransfer(t *testing.T) {
	b := NewBook()

	if err := b.Deposit("alice", 10_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := b.Deposit("alice", 0); err == nil {
		t.Error("zero deposit accepted")
	}
	if got := b.Balance("alice"); got != 10_000 {
		t.Errorf("alice = %d, want 10000", got)
	}

	if err := b.Transfer("alice", Escrow, 3000); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := b.Balance("alice"); got != 7000 {
		t.Errorf("alice = %d, want 7000", got)
	}
	if got := b.Balance(Escrow); got != 3000 {
		t.Errorf("escrow = %d, want 3000", got)
	}

	// Zero transfer is a no-op, not an error.
	if err := b.Transfer("alice", Escrow, 0); err != nil {
		t.Errorf("zero transfer: %v", err)
	}

	if err := b.Transfer("alice", Escrow, 8000); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraft: got %v, want ErrInsufficientFunds", err)
	}
	if got := b.Balance("alice"); got != 7000 {
		t.Errorf("failed transfer mutated alice: %d", got)
	}

	if got := b.Sum(); got != 0 {
		t.Errorf("book sum = %d, want 0", got)
	}
}

func TestTransferBatchAtomic(t *testing.T) {
	b := NewBook()
	b.Deposit("funder", 1000)
	b.Transfer("funder", Escrow, 1000)

	// Total exceeds escrow: nothing moves.
	err := b.TransferBatch(Escrow, []Credit{
		{To: "alice", Amount: 600},
		{To: "bob", Amount: 500},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdrawn batch: got %v, want ErrInsufficientFunds", err)
	}
	for _, a := range []Account{"alice", "bob"} {
		if got := b.Balance(a); got != 0 {
			t.Errorf("failed batch credited %s: %d", a, got)
		}
	}
	if got := b.Balance(Escrow); got != 1000 {
		t.Errorf("failed batch debited escrow: %d", got)
	}

	// Negative and self credits are rejected before any validation of funds.
	if err := b.TransferBatch(Escrow, []Credit{{To: "alice", Amount: -1}}); err == nil {
		t.Error("negative credit accepted")
	}
	if err := b.TransferBatch(Escrow, []Credit{{To: Escrow, Amount: 10}}); err == nil {
		t.Error("self credit accepted")
	}

	// Valid batch applies every leg.
	err = b.TransferBatch(Escrow, []Credit{
		{To: "alice", Amount: 600},
		{To: "bob", Amount: 400},
	})
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if b.Balance("alice") != 600 || b.Balance("bob") != 400 || b.Balance(Escrow) != 0 {
		t.Errorf("batch result alice=%d bob=%d escrow=%d", b.Balance("alice"), b.Balance("bob"), b.Balance(Escrow))
	}
	if got := b.Sum(); got != 0 {
		t.Errorf("book sum = %d, want 0", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	b := NewBook()
	b.Deposit("alice", 10_000)
	b.Transfer("alice", Escrow, 4000)

	snap := b.Snapshot()

	b2 := NewBook()
	b2.Restore(snap)
	if b2.Balance("alice") != 6000 || b2.Balance(Escrow) != 4000 {
		t.Errorf("restored alice=%d escrow=%d", b2.Balance("alice"), b2.Balance(Escrow))
	}
	if got := b2.Sum(); got != 0 {
		t.Errorf("restored sum = %d, want 0", got)
	}

	// Mutating the snapshot map must not reach the source book.
	snap["alice"] = 0
	if got := b.Balance("alice"); got != 6000 {
		t.Errorf("snapshot aliases book: alice = %d", got)
	}
}
