// Package bank is the fund-movement boundary of the market: a zero-sum
// double-entry balance book. All staked funds sit in the escrow account;
// settlement and fees move them out through atomic transfers.
package bank

import (
	"fmt"
	"sync"
)

// Account identifies a cash account. Participant accounts are keyed by the
// caller key; system accounts use reserved "system:" names and the external
// boundary uses "external:".
type Account string

const (
	// Escrow holds every staked amount between placement and settlement.
	Escrow Account = "system:escrow"

	// externalFloat is the boundary account that keeps the book zero-sum:
	// deposits debit it, withdrawals credit it.
	externalFloat Account = "external:float"
)

// Credit is one leg of an atomic multi-credit transfer.
type Credit struct {
	To     Account
	Amount int64
}

// ErrInsufficientFunds is returned when a debit would push an internal
// account negative.
var ErrInsufficientFunds = fmt.Errorf("insufficient funds")

// Bank moves funds between accounts. TransferBatch is atomic: either every
// credit lands or none do.
type Bank interface {
	Transfer(from, to Account, amount int64) error
	TransferBatch(from Account, credits []Credit) error
	Balance(a Account) int64
}

// Book is an in-memory zero-sum balance book guarded by a mutex. Its callers
// hold the engine's operation lock, so the internal mutex only protects
// direct read access from query paths.
type Book struct {
	mu       sync.RWMutex
	balances map[Account]int64
}

func NewBook() *Book {
	return &Book{balances: make(map[Account]int64)}
}

// Deposit mints spendable balance for an account against the external
// boundary. The external float goes negative by construction; the book sum
// stays zero.
func (b *Book) Deposit(to Account, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] += amount
	b.balances[externalFloat] -= amount
	return nil
}

// Transfer moves amount between two internal accounts. A zero amount is a
// no-op. Fails without mutation if the source cannot cover the debit.
func (b *Book) Transfer(from, to Account, amount int64) error {
	if amount == 0 {
		return nil
	}
	return b.TransferBatch(from, []Credit{{To: to, Amount: amount}})
}

// TransferBatch debits from once and applies every credit, or fails with no
// mutation at all. Validation runs in full before the first balance moves.
func (b *Book) TransferBatch(from Account, credits []Credit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, c := range credits {
		if c.Amount < 0 {
			return fmt.Errorf("negative credit %d to %s", c.Amount, c.To)
		}
		if c.To == from {
			return fmt.Errorf("self transfer on account %s", from)
		}
		total += c.Amount
	}
	if total == 0 {
		return nil
	}
	if b.balances[from] < total {
		return fmt.Errorf("%w: account %s has %d, need %d", ErrInsufficientFunds, from, b.balances[from], total)
	}

	b.balances[from] -= total
	for _, c := range credits {
		if c.Amount > 0 {
			b.balances[c.To] += c.Amount
		}
	}
	return nil
}

// Restore overwrites the book with persisted balances. Startup only,
// before any traffic.
func (b *Book) Restore(balances map[Account]int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[Account]int64, len(balances))
	for k, v := range balances {
		b.balances[k] = v
	}
}

// Balance returns the current balance of an account.
func (b *Book) Balance(a Account) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[a]
}

// Sum returns the sum over all accounts, the external float included. A
// non-zero sum means the book is corrupt.
func (b *Book) Sum() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, v := range b.balances {
		total += v
	}
	return total
}

// Snapshot returns a copy of all balances for persistence and inspection.
func (b *Book) Snapshot() map[Account]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Account]int64, len(b.balances))
	for k, v := range b.balances {
		out[k] = v
	}
	return out
}
