package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/x3na-dev/x3na/internal/bank"
)

const (
	operator = "op"
	admin    = "root"
	alice    = "alice"
	bob      = "bob"
	carol    = "carol"
)

type testEnv struct {
	t      *testing.T
	engine *Engine
	book   *bank.Book
	ref    *fakeRecorder
	now    int64
}

type fakeRecorder struct {
	volumes   []int64
	referrals map[string]string
	fail      bool
}

func (f *fakeRecorder) RecordVolume(ctx context.Context, participant string, amount int64) error {
	if f.fail {
		return errors.New("referral subsystem down")
	}
	f.volumes = append(f.volumes, amount)
	return nil
}

func (f *fakeRecorder) RegisterReferral(ctx context.Context, participant, referrer string) error {
	if f.referrals == nil {
		f.referrals = make(map[string]string)
	}
	f.referrals[participant] = referrer
	return nil
}

func testParams() Params {
	p := DefaultParams()
	p.MinBet = 1
	p.TreasuryFeeBps = 1000 // 10%, matches the worked example
	p.FlatDispatchFee = 300
	return p
}

func newTestEnv(t *testing.T, params Params) *testEnv {
	t.Helper()
	env := &testEnv{t: t, now: 1_000_000, book: bank.NewBook(), ref: &fakeRecorder{}}

	guard := NewGuard()
	guard.Allow(operator, OpStartRound, OpLockRound, OpResolveRound, OpBatchSettle)
	guard.Allow(admin, OpAdmin, OpEmergencyWithdraw)

	engine, err := NewEngine(Config{
		Params:   params,
		Bank:     env.book,
		Referral: env.ref,
		Guard:    guard,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Unix(env.now, 0) },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env.engine = engine
	return env
}

func (env *testEnv) fund(account string, amount int64) {
	env.t.Helper()
	if err := env.book.Deposit(bank.Account(account), amount); err != nil {
		env.t.Fatalf("deposit: %v", err)
	}
}

func (env *testEnv) balance(account string) int64 {
	return env.book.Balance(bank.Account(account))
}

// startRound opens a round with a 100s betting window and a 100s wait.
func (env *testEnv) startRound(id string) *Round {
	env.t.Helper()
	r, err := env.engine.StartRound(context.Background(), operator, id, 100, 100, "")
	if err != nil {
		env.t.Fatalf("StartRound(%s): %v", id, err)
	}
	return r
}

func (env *testEnv) bet(participant, roundID string, pos Position, amount int64) {
	env.t.Helper()
	if err := env.engine.PlaceBet(context.Background(), participant, roundID, pos, amount); err != nil {
		env.t.Fatalf("PlaceBet(%s, %s): %v", participant, roundID, err)
	}
}

func (env *testEnv) lockAt(roundID string, price int64) {
	env.t.Helper()
	if err := env.engine.LockRound(context.Background(), operator, roundID, price); err != nil {
		env.t.Fatalf("LockRound(%s): %v", roundID, err)
	}
}

func (env *testEnv) resolveAt(roundID string, price int64) {
	env.t.Helper()
	if err := env.engine.ResolveRound(context.Background(), operator, roundID, price); err != nil {
		env.t.Fatalf("ResolveRound(%s): %v", roundID, err)
	}
}

func (env *testEnv) checkZeroSum() {
	env.t.Helper()
	if sum := env.book.Sum(); sum != 0 {
		env.t.Errorf("balance book sum = %d, want 0", sum)
	}
}

// Full lifecycle with a fee cut at resolution and a sole winner claiming the
// whole pool: 3000 bull + 7000 bear, 10% fee, pool 9000, bull takes 9000.
func TestLifecycleWithPullClaim(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)
	env.fund(bob, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(bob, "r1", PositionBear, 7000)

	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100
	env.resolveAt("r1", 60_000)

	r, phase, err := env.engine.Round("r1")
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if phase != PhaseResolved {
		t.Errorf("phase = %v, want resolved", phase)
	}
	if r.RewardPool != 9000 {
		t.Errorf("reward pool = %d, want 9000", r.RewardPool)
	}
	if got := env.balance("system:treasury"); got != 1000 {
		t.Errorf("treasury = %d, want 1000", got)
	}

	total, err := env.engine.Claim(context.Background(), alice, []string{"r1"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if total != 9000 {
		t.Errorf("claim total = %d, want 9000", total)
	}
	if got := env.balance(alice); got != 10_000-3000+9000 {
		t.Errorf("alice balance = %d, want 16000", got)
	}

	// Loser's claim settles at zero but still flips the claimed flag.
	total, err = env.engine.Claim(context.Background(), bob, []string{"r1"})
	if err != nil {
		t.Fatalf("loser claim: %v", err)
	}
	if total != 0 {
		t.Errorf("loser claim total = %d, want 0", total)
	}
	if got := env.book.Balance(bank.Escrow); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	env.checkZeroSum()
}

// Push settlement deducts the flat dispatch fee from payouts that exceed it
// and credits the fees to the treasury in the same atomic batch.
func TestBatchSettleFlatFee(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)
	env.fund(bob, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(bob, "r1", PositionBear, 7000)

	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100
	env.resolveAt("r1", 60_000)

	settled, err := env.engine.BatchSettle(context.Background(), operator, "r1", 0, 2)
	if err != nil {
		t.Fatalf("BatchSettle: %v", err)
	}
	if settled != 2 {
		t.Errorf("settled = %d, want 2", settled)
	}
	// Winner nets 9000 - 300; loser pays nothing and owes no fee.
	if got := env.balance(alice); got != 10_000-3000+8700 {
		t.Errorf("alice balance = %d, want 15700", got)
	}
	if got := env.balance(bob); got != 3000 {
		t.Errorf("bob balance = %d, want 3000", got)
	}
	if got := env.balance("system:treasury"); got != 1000+300 {
		t.Errorf("treasury = %d, want 1300", got)
	}

	// Overlapping range is a no-op: every wager already claimed.
	settled, err = env.engine.BatchSettle(context.Background(), operator, "r1", 0, 2)
	if err != nil {
		t.Fatalf("second BatchSettle: %v", err)
	}
	if settled != 0 {
		t.Errorf("resettled = %d, want 0", settled)
	}
	env.checkZeroSum()
}

// A payout at or below the flat fee is paid in full; the fee only applies
// when the payout strictly exceeds it.
func TestBatchSettleFeeNotAboveTinyPayout(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 200)

	// Never locked: expires into refund after close + buffer.
	env.now += 231
	settled, err := env.engine.BatchSettle(context.Background(), operator, "r1", 0, 1)
	if err != nil {
		t.Fatalf("BatchSettle: %v", err)
	}
	if settled != 1 {
		t.Errorf("settled = %d, want 1", settled)
	}
	if got := env.balance(alice); got != 10_000 {
		t.Errorf("alice balance = %d, want full refund to 10000", got)
	}
	env.checkZeroSum()
}

func TestLockTimingWindow(t *testing.T) {
	env := newTestEnv(t, testParams())
	ctx := context.Background()
	env.startRound("r1")

	// Too early: betting window still open.
	if err := env.engine.LockRound(ctx, operator, "r1", 50_000); !errors.Is(err, ErrTiming) {
		t.Errorf("early lock: got %v, want ErrTiming", err)
	}

	// Too late: buffer elapsed.
	env.now += 100 + 31
	if err := env.engine.LockRound(ctx, operator, "r1", 50_000); !errors.Is(err, ErrTiming) {
		t.Errorf("late lock: got %v, want ErrTiming", err)
	}

	// Resolve before lock is a state error, not a timing one.
	if err := env.engine.ResolveRound(ctx, operator, "r1", 60_000); !errors.Is(err, ErrState) {
		t.Errorf("resolve unlocked: got %v, want ErrState", err)
	}
}

func TestResolveTimingWindow(t *testing.T) {
	env := newTestEnv(t, testParams())
	ctx := context.Background()
	env.startRound("r1")

	env.now += 100
	env.lockAt("r1", 50_000)

	// Close time not reached.
	if err := env.engine.ResolveRound(ctx, operator, "r1", 60_000); !errors.Is(err, ErrTiming) {
		t.Errorf("early resolve: got %v, want ErrTiming", err)
	}

	// Buffer elapsed: round is now permanently unresolvable.
	env.now += 100 + 31
	if err := env.engine.ResolveRound(ctx, operator, "r1", 60_000); !errors.Is(err, ErrTiming) {
		t.Errorf("late resolve: got %v, want ErrTiming", err)
	}
}

// A round that was never resolved refunds every stake in full once the close
// buffer elapses, with no fee of any kind on the pull path.
func TestExpiredRoundRefund(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)
	env.fund(bob, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(bob, "r1", PositionBear, 7000)

	env.now += 100
	env.lockAt("r1", 50_000)

	// Claim before expiry is rejected.
	if _, err := env.engine.Claim(context.Background(), alice, []string{"r1"}); !errors.Is(err, ErrBatchAbort) {
		t.Errorf("claim before expiry: got %v, want ErrBatchAbort", err)
	}

	env.now += 100 + 31

	_, phase, err := env.engine.Round("r1")
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if phase != PhaseExpiredUnresolved {
		t.Errorf("phase = %v, want expired_unresolved", phase)
	}

	for _, p := range []string{alice, bob} {
		if _, err := env.engine.Claim(context.Background(), p, []string{"r1"}); err != nil {
			t.Fatalf("refund claim %s: %v", p, err)
		}
		if got := env.balance(p); got != 10_000 {
			t.Errorf("%s balance = %d, want 10000", p, got)
		}
	}
	if got := env.balance("system:treasury"); got != 0 {
		t.Errorf("treasury = %d, want 0 on refunds", got)
	}
	env.checkZeroSum()
}

func TestDrawRefund(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)

	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100
	env.resolveAt("r1", 50_000)

	r, _, err := env.engine.Round("r1")
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if r.RewardPool != 0 {
		t.Errorf("draw reward pool = %d, want 0", r.RewardPool)
	}
	if got := env.balance("system:treasury"); got != 0 {
		t.Errorf("draw treasury = %d, want 0", got)
	}

	total, err := env.engine.Claim(context.Background(), alice, []string{"r1"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if total != 3000 {
		t.Errorf("draw refund = %d, want 3000", total)
	}
	env.checkZeroSum()
}

func TestPlaceBetGuards(t *testing.T) {
	env := newTestEnv(t, DefaultParams())
	ctx := context.Background()
	env.fund(alice, 1000 * 1_000_000)

	env.startRound("r1")

	// Bounds.
	if err := env.engine.PlaceBet(ctx, alice, "r1", PositionBull, 999); !errors.Is(err, ErrValidation) {
		t.Errorf("below min: got %v, want ErrValidation", err)
	}
	if err := env.engine.PlaceBet(ctx, alice, "r1", PositionBull, 501*1_000_000); !errors.Is(err, ErrValidation) {
		t.Errorf("above max: got %v, want ErrValidation", err)
	}

	// Duplicate wager.
	env.bet(alice, "r1", PositionBull, 5000)
	if err := env.engine.PlaceBet(ctx, alice, "r1", PositionBear, 5000); !errors.Is(err, ErrState) {
		t.Errorf("duplicate wager: got %v, want ErrState", err)
	}

	// Unfunded caller: transfer fails, no ledger mutation.
	if err := env.engine.PlaceBet(ctx, bob, "r1", PositionBear, 5000); !errors.Is(err, ErrTransfer) {
		t.Errorf("unfunded bet: got %v, want ErrTransfer", err)
	}
	r, _, _ := env.engine.Round("r1")
	if r.BearTotal != 0 {
		t.Errorf("failed bet leaked into bear total: %d", r.BearTotal)
	}

	// Window closed.
	env.now += 100
	if err := env.engine.PlaceBet(ctx, alice, "r2", PositionBull, 5000); !errors.Is(err, ErrState) {
		t.Errorf("unknown round: got %v, want ErrState", err)
	}
	if err := env.engine.PlaceBet(ctx, bob, "r1", PositionBear, 5000); !errors.Is(err, ErrTiming) {
		t.Errorf("bet after lock time: got %v, want ErrTiming", err)
	}
}

func TestBetTotalsMatchWagers(t *testing.T) {
	env := newTestEnv(t, testParams())
	stakes := map[string]int64{alice: 1200, bob: 4500, carol: 333}
	for p := range stakes {
		env.fund(p, 10_000)
	}

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, stakes[alice])
	env.bet(bob, "r1", PositionBear, stakes[bob])
	env.bet(carol, "r1", PositionBull, stakes[carol])

	r, _, err := env.engine.Round("r1")
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if r.BullTotal != stakes[alice]+stakes[carol] {
		t.Errorf("bull total = %d, want %d", r.BullTotal, stakes[alice]+stakes[carol])
	}
	if r.BearTotal != stakes[bob] {
		t.Errorf("bear total = %d, want %d", r.BearTotal, stakes[bob])
	}
	if got := env.book.Balance(bank.Escrow); got != r.Total() {
		t.Errorf("escrow = %d, want %d", got, r.Total())
	}

	participants, err := env.engine.Participants("r1", 0, 0)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(participants) != 3 || participants[0] != alice || participants[1] != bob || participants[2] != carol {
		t.Errorf("participant index = %v, want placement order", participants)
	}

	if len(env.ref.volumes) != 3 {
		t.Errorf("referral volume notifications = %d, want 3", len(env.ref.volumes))
	}
}

func TestClaimBatchAllOrNothing(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 20_000)
	ctx := context.Background()

	env.startRound("r1")
	env.startRound("r2")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(alice, "r2", PositionBull, 4000)

	env.now += 100
	env.lockAt("r1", 50_000)
	env.lockAt("r2", 50_000)
	env.now += 100
	env.resolveAt("r1", 60_000)

	balanceBefore := env.balance(alice)

	// r2 unresolved inside its buffer: the whole batch aborts untouched.
	if _, err := env.engine.Claim(ctx, alice, []string{"r1", "r2"}); !errors.Is(err, ErrBatchAbort) {
		t.Fatalf("mixed batch: got %v, want ErrBatchAbort", err)
	}
	if got := env.balance(alice); got != balanceBefore {
		t.Errorf("aborted batch moved funds: %d != %d", got, balanceBefore)
	}
	w, err := env.engine.Wager("r1", alice)
	if err != nil {
		t.Fatalf("Wager: %v", err)
	}
	if w.Claimed {
		t.Error("aborted batch flipped claimed flag")
	}

	// Duplicate round ids are rejected before any payout math.
	if _, err := env.engine.Claim(ctx, alice, []string{"r1", "r1"}); !errors.Is(err, ErrBatchAbort) {
		t.Errorf("duplicate ids: got %v, want ErrBatchAbort", err)
	}

	// Clean single-round claim, then a double claim.
	if _, err := env.engine.Claim(ctx, alice, []string{"r1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.engine.Claim(ctx, alice, []string{"r1"}); !errors.Is(err, ErrBatchAbort) {
		t.Errorf("double claim: got %v, want ErrBatchAbort", err)
	}
	env.checkZeroSum()
}

func TestResolveAndSettle(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)
	env.fund(bob, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(bob, "r1", PositionBear, 7000)

	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100

	settled, err := env.engine.ResolveAndSettle(context.Background(), operator, "r1", 60_000, 0, 0)
	if err != nil {
		t.Fatalf("ResolveAndSettle: %v", err)
	}
	if settled != 2 {
		t.Errorf("settled = %d, want 2", settled)
	}
	if got := env.balance(alice); got != 10_000-3000+8700 {
		t.Errorf("alice balance = %d, want 15700", got)
	}
	if got := env.book.Balance(bank.Escrow); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	env.checkZeroSum()
}

func TestResolveIsOnce(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100
	env.resolveAt("r1", 60_000)

	treasury := env.balance("system:treasury")
	if err := env.engine.ResolveRound(context.Background(), operator, "r1", 40_000); !errors.Is(err, ErrState) {
		t.Errorf("second resolve: got %v, want ErrState", err)
	}
	if got := env.balance("system:treasury"); got != treasury {
		t.Errorf("second resolve moved fees: %d != %d", got, treasury)
	}
	if err := env.engine.LockRound(context.Background(), operator, "r1", 40_000); !errors.Is(err, ErrState) {
		t.Errorf("relock: got %v, want ErrState", err)
	}
}

func TestSuspendGates(t *testing.T) {
	env := newTestEnv(t, testParams())
	ctx := context.Background()
	env.fund(alice, 10_000)
	env.startRound("r1")

	// Parameter writes require suspension first.
	if err := env.engine.SetBufferWindow(ctx, admin, 60); !errors.Is(err, ErrState) {
		t.Errorf("param write while active: got %v, want ErrState", err)
	}
	if err := env.engine.EmergencyWithdraw(ctx, admin, 100); !errors.Is(err, ErrState) {
		t.Errorf("emergency withdraw while active: got %v, want ErrState", err)
	}

	if err := env.engine.Suspend(ctx, operator); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("operator suspend: got %v, want ErrUnauthorized", err)
	}
	if err := env.engine.Suspend(ctx, admin); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := env.engine.Suspend(ctx, admin); !errors.Is(err, ErrState) {
		t.Errorf("double suspend: got %v, want ErrState", err)
	}

	// All market operations reject while suspended.
	if err := env.engine.PlaceBet(ctx, alice, "r1", PositionBull, 3000); !errors.Is(err, ErrState) {
		t.Errorf("bet while suspended: got %v, want ErrState", err)
	}
	if _, err := env.engine.StartRound(ctx, operator, "r2", 100, 100, ""); !errors.Is(err, ErrState) {
		t.Errorf("start while suspended: got %v, want ErrState", err)
	}

	if err := env.engine.SetBufferWindow(ctx, admin, 60); err != nil {
		t.Fatalf("SetBufferWindow: %v", err)
	}
	if err := env.engine.SetTreasuryFeeBps(ctx, admin, 10_001); !errors.Is(err, ErrValidation) {
		t.Errorf("fee above 100%%: got %v, want ErrValidation", err)
	}
	if got := env.engine.Params().BufferSecs; got != 60 {
		t.Errorf("buffer = %d, want 60", got)
	}

	if err := env.engine.Resume(ctx, admin); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := env.engine.Resume(ctx, admin); !errors.Is(err, ErrState) {
		t.Errorf("double resume: got %v, want ErrState", err)
	}
	env.bet(alice, "r1", PositionBull, 3000)
}

func TestEmergencyWithdraw(t *testing.T) {
	env := newTestEnv(t, testParams())
	ctx := context.Background()
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)

	if err := env.engine.Suspend(ctx, admin); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := env.engine.EmergencyWithdraw(ctx, admin, 5000); !errors.Is(err, ErrTransfer) {
		t.Errorf("overdrawn withdraw: got %v, want ErrTransfer", err)
	}
	if err := env.engine.EmergencyWithdraw(ctx, admin, 3000); err != nil {
		t.Fatalf("EmergencyWithdraw: %v", err)
	}
	if got := env.balance("system:treasury"); got != 3000 {
		t.Errorf("treasury = %d, want 3000", got)
	}
	env.checkZeroSum()
}

func TestClaimablePreview(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)

	if _, _, err := env.engine.Claimable("r1", alice); !errors.Is(err, ErrTiming) {
		t.Errorf("preview before finish: got %v, want ErrTiming", err)
	}
	if _, _, err := env.engine.Claimable("r1", bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("preview without wager: got %v, want ErrNotFound", err)
	}

	env.now += 100
	env.lockAt("r1", 50_000)
	env.now += 100
	env.resolveAt("r1", 60_000)

	amount, result, err := env.engine.Claimable("r1", alice)
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	if result != ResultWin || amount != 2700 {
		t.Errorf("Claimable = (%d, %v), want (2700, win)", amount, result)
	}

	// Preview is read-only: a real claim still works and pays the same.
	total, err := env.engine.Claim(context.Background(), alice, []string{"r1"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if total != amount {
		t.Errorf("claim total %d != preview %d", total, amount)
	}
	if _, _, err := env.engine.Claimable("r1", alice); !errors.Is(err, ErrState) {
		t.Errorf("preview after claim: got %v, want ErrState", err)
	}
}

func TestRestoreRoundTrips(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.fund(alice, 10_000)
	env.fund(bob, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)
	env.bet(bob, "r1", PositionBear, 7000)
	env.now += 100
	env.lockAt("r1", 50_000)

	// Rebuild a second engine from the durable rows the first one produced.
	r, _, err := env.engine.Round("r1")
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	wa, _ := env.engine.Wager("r1", alice)
	wb, _ := env.engine.Wager("r1", bob)
	snap := Snapshot{
		Rounds: []Round{*r},
		Wagers: []Wager{*wa, *wb},
		Participants: []ParticipantRow{
			{RoundID: "r1", Seq: 0, Participant: alice},
			{RoundID: "r1", Seq: 1, Participant: bob},
		},
		Balances: env.book.Snapshot(),
		Sequence: env.engine.Sequence(),
	}

	env2 := newTestEnv(t, testParams())
	env2.now = env.now
	env2.book.Restore(snap.Balances)
	env2.engine.Restore(snap)

	if got := env2.engine.Sequence(); got != snap.Sequence {
		t.Errorf("restored sequence = %d, want %d", got, snap.Sequence)
	}

	env2.now += 100
	env2.resolveAt("r1", 60_000)
	total, err := env2.engine.Claim(context.Background(), alice, []string{"r1"})
	if err != nil {
		t.Fatalf("claim after restore: %v", err)
	}
	if total != 9000 {
		t.Errorf("claim after restore = %d, want 9000", total)
	}
	env2.checkZeroSum()
}

func TestReferralRegistration(t *testing.T) {
	env := newTestEnv(t, testParams())
	ctx := context.Background()

	if err := env.engine.RegisterReferral(ctx, alice, alice); !errors.Is(err, ErrValidation) {
		t.Errorf("self-referral: got %v, want ErrValidation", err)
	}
	if err := env.engine.RegisterReferral(ctx, alice, bob); err != nil {
		t.Fatalf("RegisterReferral: %v", err)
	}
	if env.ref.referrals[alice] != bob {
		t.Errorf("referral not forwarded: %v", env.ref.referrals)
	}
}

// A failing referral collaborator never blocks wager placement.
func TestReferralFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ref.fail = true
	env.fund(alice, 10_000)

	env.startRound("r1")
	env.bet(alice, "r1", PositionBull, 3000)

	if w, err := env.engine.Wager("r1", alice); err != nil || w.Amount != 3000 {
		t.Errorf("wager missing after referral failure: %v, %v", w, err)
	}
}

func TestEventSequenceMonotonic(t *testing.T) {
	persistCh := make(chan Output, 16)
	now := int64(1_000_000)

	book := bank.NewBook()
	guard := NewGuard()
	guard.Allow(operator, OpStartRound, OpLockRound, OpResolveRound, OpBatchSettle)
	engine, err := NewEngine(Config{
		Params:      testParams(),
		Bank:        book,
		Guard:       guard,
		Logger:      zerolog.Nop(),
		PersistChan: persistCh,
		Now:         func() time.Time { return time.Unix(now, 0) },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	book.Deposit(bank.Account(alice), 10_000)

	ctx := context.Background()
	if _, err := engine.StartRound(ctx, operator, "r1", 100, 100, "btc-5m"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if err := engine.PlaceBet(ctx, alice, "r1", PositionBull, 3000); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	now += 100
	if err := engine.LockRound(ctx, operator, "r1", 50_000); err != nil {
		t.Fatalf("LockRound: %v", err)
	}

	close(persistCh)
	want := int64(0)
	for out := range persistCh {
		if out.Envelope.Sequence != want {
			t.Errorf("sequence = %d, want %d", out.Envelope.Sequence, want)
		}
		want++
	}
	if want != 3 {
		t.Errorf("emitted %d outputs, want 3", want)
	}
	if got := engine.Sequence(); got != 3 {
		t.Errorf("engine sequence = %d, want 3", got)
	}
}
