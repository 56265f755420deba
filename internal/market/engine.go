package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/x3na-dev/x3na/internal/bank"
	"github.com/x3na-dev/x3na/internal/event"
	"github.com/x3na-dev/x3na/internal/money"
	"github.com/x3na-dev/x3na/internal/observability"
	"github.com/x3na-dev/x3na/internal/referral"
)

// ParticipantRow is one append-only index entry: the Nth participant to
// place a first wager in a round. Used only for push-settlement pagination,
// never for payout math.
type ParticipantRow struct {
	RoundID     string
	Seq         int
	Participant string
}

// BalanceRow is a post-operation balance snapshot of a touched account.
type BalanceRow struct {
	Account string
	Balance int64
}

// Output is what one applied operation leaves behind: the event envelope
// plus snapshots of every row it touched. The orchestrator bridges these to
// the persistence worker and the outbound publisher.
type Output struct {
	Envelope     event.Envelope
	Rounds       []Round
	Wagers       []Wager
	Participants []ParticipantRow
	Balances     []BalanceRow
}

// Snapshot is the durable state handed back to the engine on startup.
type Snapshot struct {
	Rounds       []Round
	Wagers       []Wager
	Participants []ParticipantRow
	Balances     map[bank.Account]int64
	Sequence     int64
}

// Config wires an Engine.
type Config struct {
	Params   Params
	Bank     bank.Bank
	Referral referral.Recorder
	Guard    *Guard
	Metrics  *observability.Metrics
	Logger   zerolog.Logger

	// PersistChan receives every output with a blocking send — the engine
	// stalls rather than lose a row. PublishChan is best-effort: full
	// channel drops, downstream consumers re-read the event log.
	PersistChan chan<- Output
	PublishChan chan<- Output

	// Now is the wall clock; tests inject a fake.
	Now func() time.Time
}

// Engine is the single-writer core: round lifecycle state machine, wager
// ledger, payout computation, and settlement dispatch. Every public
// operation runs as one atomic unit under the operation lock; no caller
// ever observes intermediate ledger state.
type Engine struct {
	mu sync.Mutex

	params Params
	guard  *Guard
	now    func() time.Time

	rounds map[string]*Round
	wagers map[WagerKey]*Wager
	index  map[string][]string

	bank     bank.Bank
	referral referral.Recorder

	seq     int64
	log     zerolog.Logger
	metrics *observability.Metrics

	persistCh chan<- Output
	publishCh chan<- Output
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bank == nil {
		return nil, fmt.Errorf("engine requires a bank")
	}
	if cfg.Guard == nil {
		cfg.Guard = NewGuard()
	}
	if cfg.Referral == nil {
		cfg.Referral = referral.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		params:    cfg.Params,
		guard:     cfg.Guard,
		now:       cfg.Now,
		rounds:    make(map[string]*Round),
		wagers:    make(map[WagerKey]*Wager),
		index:     make(map[string][]string),
		bank:      cfg.Bank,
		referral:  cfg.Referral,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		persistCh: cfg.PersistChan,
		publishCh: cfg.PublishChan,
	}, nil
}

// Restore loads durable state back into the engine. Called once at startup,
// before any traffic.
func (e *Engine) Restore(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range snap.Rounds {
		r := snap.Rounds[i]
		e.rounds[r.ID] = &r
	}
	for i := range snap.Wagers {
		w := snap.Wagers[i]
		e.wagers[w.key()] = &w
	}
	for _, p := range snap.Participants {
		ids := e.index[p.RoundID]
		for len(ids) <= p.Seq {
			ids = append(ids, "")
		}
		ids[p.Seq] = p.Participant
		e.index[p.RoundID] = ids
	}
	e.seq = snap.Sequence
}

// ---------------------------------------------------------------------------
// Round lifecycle (operator)
// ---------------------------------------------------------------------------

// StartRound creates a round whose betting window opens immediately:
// lockTime = now + betWindow, closeTime = lockTime + waitWindow.
func (e *Engine) StartRound(ctx context.Context, caller, id string, betWindowSecs, waitWindowSecs int64, metadata string) (*Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return nil, err
	}
	if err := e.guard.Require(caller, OpStartRound); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, validationf("round id must be set")
	}
	if betWindowSecs <= 0 || waitWindowSecs <= 0 {
		return nil, validationf("bet window %ds / wait window %ds must be positive", betWindowSecs, waitWindowSecs)
	}
	if _, ok := e.rounds[id]; ok {
		return nil, statef("round %s already exists", id)
	}

	now := e.now().Unix()
	r := &Round{
		ID:        id,
		Metadata:  metadata,
		StartTime: now,
		LockTime:  now + betWindowSecs,
		CloseTime: now + betWindowSecs + waitWindowSecs,
	}
	e.rounds[id] = r

	e.emit(Output{
		Envelope: e.envelope(event.TypeRoundStarted, id, caller, event.RoundStarted{
			RoundID:   id,
			Metadata:  metadata,
			StartTime: r.StartTime,
			LockTime:  r.LockTime,
			CloseTime: r.CloseTime,
		}),
		Rounds: []Round{*r},
	})
	if e.metrics != nil {
		e.metrics.RoundsStarted.Inc()
	}
	e.log.Info().Str("round", id).Int64("lock_time", r.LockTime).Int64("close_time", r.CloseTime).Msg("round started")

	return r.clone(), nil
}

// LockRound records the lock price. Valid only inside
// [lockTime, lockTime+buffer].
func (e *Engine) LockRound(ctx context.Context, caller, id string, price int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return err
	}
	if err := e.guard.Require(caller, OpLockRound); err != nil {
		return err
	}
	if price == 0 {
		return validationf("lock price must be non-zero")
	}

	r, ok := e.rounds[id]
	if !ok {
		return statef("round %s not started", id)
	}
	if r.HasLocked() {
		return statef("round %s already locked", id)
	}
	now := e.now().Unix()
	if now < r.LockTime || now > r.LockTime+e.params.BufferSecs {
		return timingf("lock for round %s outside [%d, %d]", id, r.LockTime, r.LockTime+e.params.BufferSecs)
	}

	r.LockPrice = price

	e.emit(Output{
		Envelope: e.envelope(event.TypeRoundLocked, id, caller, event.RoundLocked{RoundID: id, LockPrice: price}),
		Rounds:   []Round{*r},
	})
	if e.metrics != nil {
		e.metrics.RoundsLocked.Inc()
	}
	e.log.Info().Str("round", id).Int64("lock_price", price).Msg("round locked")

	return nil
}

// ResolveRound records the close price, computes the reward pool, and moves
// the treasury cut. A price tie is a draw: no fee, reward pool stays zero,
// every wager refunds.
func (e *Engine) ResolveRound(ctx context.Context, caller, id string, price int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return err
	}
	if err := e.guard.Require(caller, OpResolveRound); err != nil {
		return err
	}
	return e.resolveLocked(caller, id, price)
}

func (e *Engine) resolveLocked(caller, id string, price int64) error {
	if price == 0 {
		return validationf("close price must be non-zero")
	}

	r, ok := e.rounds[id]
	if !ok {
		return statef("round %s not started", id)
	}
	if !r.HasLocked() {
		return statef("round %s not locked", id)
	}
	if r.Resolved {
		return statef("round %s already resolved", id)
	}
	now := e.now().Unix()
	if now < r.CloseTime || now > r.CloseTime+e.params.BufferSecs {
		return timingf("resolve for round %s outside [%d, %d]", id, r.CloseTime, r.CloseTime+e.params.BufferSecs)
	}

	var treasuryCut int64
	if price != r.LockPrice {
		treasuryCut = money.FeeCut(r.Total(), e.params.TreasuryFeeBps)
		// Treasury transfer happens before any field is set: a failed
		// transfer aborts the resolve with the round still unresolved.
		if treasuryCut > 0 {
			if err := e.bank.Transfer(bank.Escrow, e.params.Treasury, treasuryCut); err != nil {
				return transferErr(err)
			}
		}
		r.RewardPool = r.Total() - treasuryCut
	}
	r.ClosePrice = price
	r.Resolved = true

	e.emit(Output{
		Envelope: e.envelope(event.TypeRoundResolved, id, caller, event.RoundResolved{
			RoundID:     id,
			LockPrice:   r.LockPrice,
			ClosePrice:  r.ClosePrice,
			BullTotal:   r.BullTotal,
			BearTotal:   r.BearTotal,
			RewardPool:  r.RewardPool,
			TreasuryCut: treasuryCut,
			Draw:        price == r.LockPrice,
		}),
		Rounds:   []Round{*r},
		Balances: e.balanceRows(bank.Escrow, e.params.Treasury),
	})
	if e.metrics != nil {
		e.metrics.RoundsResolved.Inc()
		e.metrics.TreasuryFees.Add(float64(treasuryCut))
	}
	e.log.Info().Str("round", id).Int64("close_price", price).Int64("reward_pool", r.RewardPool).Int64("treasury_cut", treasuryCut).Msg("round resolved")

	return nil
}

// ---------------------------------------------------------------------------
// Wager placement (participant)
// ---------------------------------------------------------------------------

// PlaceBet stakes amount on a position while the round is open. The stake
// moves from the caller's cash account into escrow before any ledger field
// changes; a failed transfer leaves nothing behind.
func (e *Engine) PlaceBet(ctx context.Context, caller, roundID string, pos Position, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return err
	}
	if caller == "" {
		return validationf("caller must be set")
	}

	r, ok := e.rounds[roundID]
	if !ok {
		return statef("round %s not started", roundID)
	}
	now := e.now().Unix()
	if now < r.StartTime || now >= r.LockTime {
		return timingf("betting window for round %s is [%d, %d)", roundID, r.StartTime, r.LockTime)
	}
	if amount < e.params.MinBet || amount > e.params.MaxBet {
		return validationf("amount %d outside bet bounds [%d, %d]", amount, e.params.MinBet, e.params.MaxBet)
	}
	key := WagerKey{RoundID: roundID, Participant: caller}
	if _, exists := e.wagers[key]; exists {
		return statef("participant %s already holds a wager in round %s", caller, roundID)
	}

	if err := e.bank.Transfer(bank.Account(caller), bank.Escrow, amount); err != nil {
		return transferErr(err)
	}

	if pos == PositionBull {
		r.BullTotal += amount
	} else {
		r.BearTotal += amount
	}
	w := &Wager{RoundID: roundID, Participant: caller, Position: pos, Amount: amount}
	e.wagers[key] = w
	idx := len(e.index[roundID])
	e.index[roundID] = append(e.index[roundID], caller)

	// Volume notification to the referral subsystem is best-effort; its
	// commission mechanics are owned entirely by the collaborator.
	if err := e.referral.RecordVolume(ctx, caller, amount); err != nil {
		e.log.Warn().Err(err).Str("participant", caller).Msg("referral volume notification failed")
	}

	e.emit(Output{
		Envelope: e.envelope(event.TypeBetPlaced, roundID, caller, event.BetPlaced{
			RoundID:     roundID,
			Participant: caller,
			Position:    pos.String(),
			Amount:      amount,
		}),
		Rounds:       []Round{*r},
		Wagers:       []Wager{*w},
		Participants: []ParticipantRow{{RoundID: roundID, Seq: idx, Participant: caller}},
		Balances:     e.balanceRows(bank.Account(caller), bank.Escrow),
	})
	if e.metrics != nil {
		e.metrics.BetsPlaced.WithLabelValues(pos.String()).Inc()
		e.metrics.BetVolume.Add(float64(amount))
	}

	return nil
}

// RegisterReferral forwards a referral registration to the collaborator.
func (e *Engine) RegisterReferral(ctx context.Context, caller, referrer string) error {
	if caller == "" || referrer == "" {
		return validationf("participant and referrer must be set")
	}
	if caller == referrer {
		return validationf("self-referral")
	}
	return e.referral.RegisterReferral(ctx, caller, referrer)
}

// ---------------------------------------------------------------------------
// Settlement dispatch
// ---------------------------------------------------------------------------

type settlement struct {
	wager  *Wager
	round  *Round
	amount int64
	fee    int64
	result Result
}

// Claim is the pull path: the caller settles their own wagers across the
// given rounds in one shot. The batch is all-or-nothing — one missing,
// already-claimed, or unfinished entry rejects the whole list — and the
// accumulated total transfers once, with no dispatch fee.
func (e *Engine) Claim(ctx context.Context, caller string, roundIDs []string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return 0, err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return 0, err
	}
	if len(roundIDs) == 0 {
		return 0, validationf("empty claim list")
	}

	now := e.now().Unix()
	buffer := e.params.BufferSecs

	// Pass 1: validate every entry and price the batch. Nothing below may
	// mutate until the whole list is proven settleable.
	plan := make([]settlement, 0, len(roundIDs))
	seen := make(map[string]bool, len(roundIDs))
	var total int64
	for _, id := range roundIDs {
		if seen[id] {
			return 0, batchAbort(id, statef("duplicate round in claim list"))
		}
		seen[id] = true

		r, ok := e.rounds[id]
		if !ok {
			return 0, batchAbort(id, statef("round not started"))
		}
		w, ok := e.wagers[WagerKey{RoundID: id, Participant: caller}]
		if !ok {
			return 0, batchAbort(id, statef("no wager for participant"))
		}
		if w.Claimed {
			return 0, batchAbort(id, statef("already claimed"))
		}
		amount, result, err := Payout(r, w, now, buffer)
		if err != nil {
			return 0, batchAbort(id, err)
		}
		total += amount
		plan = append(plan, settlement{wager: w, round: r, amount: amount, result: result})
	}

	// Single accumulated transfer; failure aborts before any claimed flag
	// flips.
	if total > 0 {
		if err := e.bank.Transfer(bank.Escrow, bank.Account(caller), total); err != nil {
			return 0, transferErr(err)
		}
	}

	for _, s := range plan {
		s.wager.Claimed = true
		e.emit(Output{
			Envelope: e.envelope(event.TypeClaimSettled, s.round.ID, caller, event.ClaimSettled{
				RoundID:     s.round.ID,
				Participant: caller,
				Amount:      s.amount,
				Result:      int8(s.result),
			}),
			Wagers:   []Wager{*s.wager},
			Balances: e.balanceRows(bank.Escrow, bank.Account(caller)),
		})
		if e.metrics != nil {
			e.metrics.ClaimsSettled.WithLabelValues("pull", s.result.String()).Inc()
		}
	}
	e.log.Info().Str("participant", caller).Int("rounds", len(plan)).Int64("total", total).Msg("claim settled")

	return total, nil
}

// BatchSettle is the push path: the operator settles every unclaimed wager
// of a round over the index range [from, to), clamped to the index length.
// Missing or already-claimed wagers are skipped, which makes overlapping
// ranges idempotent and the whole sweep resumable in bounded chunks.
func (e *Engine) BatchSettle(ctx context.Context, caller, roundID string, from, to int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return 0, err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return 0, err
	}
	if err := e.guard.Require(caller, OpBatchSettle); err != nil {
		return 0, err
	}
	return e.settleLocked(caller, roundID, from, to)
}

func (e *Engine) settleLocked(caller, roundID string, from, to int) (int, error) {
	r, ok := e.rounds[roundID]
	if !ok {
		return 0, statef("round %s not started", roundID)
	}
	now := e.now().Unix()
	buffer := e.params.BufferSecs
	if !r.FinishedAt(now, buffer) {
		return 0, timingf("round %s not finished", roundID)
	}

	ids := e.index[roundID]
	if from < 0 {
		from = 0
	}
	if to > len(ids) {
		to = len(ids)
	}
	if from > to {
		return 0, validationf("settle range [%d, %d) inverted", from, to)
	}

	// Phase 1: plan. Claimed flags and balances stay untouched until every
	// transfer in the range is known to clear.
	plan := make([]settlement, 0, to-from)
	credits := make([]bank.Credit, 0, to-from)
	var totalFees int64
	for _, participant := range ids[from:to] {
		w, ok := e.wagers[WagerKey{RoundID: roundID, Participant: participant}]
		if !ok || w.Claimed {
			continue
		}
		amount, result, err := Payout(r, w, now, buffer)
		if err != nil {
			return 0, err
		}
		var fee int64
		if amount > e.params.FlatDispatchFee {
			fee = e.params.FlatDispatchFee
			amount -= fee
		}
		plan = append(plan, settlement{wager: w, round: r, amount: amount, fee: fee, result: result})
		if amount > 0 {
			credits = append(credits, bank.Credit{To: bank.Account(participant), Amount: amount})
		}
		totalFees += fee
	}
	if totalFees > 0 {
		credits = append(credits, bank.Credit{To: e.params.Treasury, Amount: totalFees})
	}

	// Phase 2: one atomic multi-credit transfer out of escrow, then commit
	// the claimed flags.
	if err := e.bank.TransferBatch(bank.Escrow, credits); err != nil {
		return 0, transferErr(err)
	}

	for _, s := range plan {
		s.wager.Claimed = true
		e.emit(Output{
			Envelope: e.envelope(event.TypeClaimSettled, roundID, caller, event.ClaimSettled{
				RoundID:     roundID,
				Participant: s.wager.Participant,
				Amount:      s.amount,
				Result:      int8(s.result),
				Fee:         s.fee,
			}),
			Wagers:   []Wager{*s.wager},
			Balances: e.balanceRows(bank.Escrow, bank.Account(s.wager.Participant), e.params.Treasury),
		})
		if e.metrics != nil {
			e.metrics.ClaimsSettled.WithLabelValues("push", s.result.String()).Inc()
		}
	}
	if e.metrics != nil && len(plan) > 0 {
		e.metrics.SettleBatchSize.Observe(float64(len(plan)))
		e.metrics.DispatchFees.Add(float64(totalFees))
	}
	e.log.Info().Str("round", roundID).Int("settled", len(plan)).Int64("fees", totalFees).Msg("batch settled")

	return len(plan), nil
}

// ResolveAndSettle resolves the round and immediately push-settles the index
// range [from, to); to == 0 means the full participant list.
func (e *Engine) ResolveAndSettle(ctx context.Context, caller, roundID string, price int64, from, to int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return 0, err
	}
	defer e.guard.Exit()

	if err := e.guard.RequireActive(); err != nil {
		return 0, err
	}
	if err := e.guard.Require(caller, OpResolveRound); err != nil {
		return 0, err
	}
	if err := e.guard.Require(caller, OpBatchSettle); err != nil {
		return 0, err
	}

	if err := e.resolveLocked(caller, roundID, price); err != nil {
		return 0, err
	}
	if to == 0 {
		to = len(e.index[roundID])
	}
	return e.settleLocked(caller, roundID, from, to)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

// Suspend halts all round, wager, and settlement operations.
func (e *Engine) Suspend(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Require(caller, OpAdmin); err != nil {
		return err
	}
	if e.guard.Suspended() {
		return statef("already suspended")
	}
	e.guard.SetSuspended(true)
	e.emit(Output{Envelope: e.envelope(event.TypeServiceSuspended, "", caller, nil)})
	e.log.Warn().Str("caller", caller).Msg("operations suspended")
	return nil
}

// Resume re-enables operations.
func (e *Engine) Resume(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Require(caller, OpAdmin); err != nil {
		return err
	}
	if !e.guard.Suspended() {
		return statef("not suspended")
	}
	e.guard.SetSuspended(false)
	e.emit(Output{Envelope: e.envelope(event.TypeServiceResumed, "", caller, nil)})
	e.log.Warn().Str("caller", caller).Msg("operations resumed")
	return nil
}

// EmergencyWithdraw drains amount from escrow to the treasury. Suspended
// state only.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	if err := e.guard.Require(caller, OpEmergencyWithdraw); err != nil {
		return err
	}
	if err := e.guard.RequireSuspended(); err != nil {
		return err
	}
	if amount <= 0 {
		return validationf("withdrawal amount must be positive")
	}
	if err := e.bank.Transfer(bank.Escrow, e.params.Treasury, amount); err != nil {
		return transferErr(err)
	}
	e.emit(Output{
		Envelope: e.envelope(event.TypeEmergencyWithdrawal, "", caller, event.EmergencyWithdrawal{Amount: amount}),
		Balances: e.balanceRows(bank.Escrow, e.params.Treasury),
	})
	e.log.Warn().Str("caller", caller).Int64("amount", amount).Msg("emergency withdrawal")
	return nil
}

// setParam applies one validated parameter mutation under the suspended
// gate and emits the audit event.
func (e *Engine) setParam(caller, field, value string, apply func(*Params)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Require(caller, OpAdmin); err != nil {
		return err
	}
	if err := e.guard.RequireSuspended(); err != nil {
		return err
	}
	next := e.params
	apply(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	e.emit(Output{Envelope: e.envelope(event.TypeParamsUpdated, "", caller, event.ParamsUpdated{Field: field, Value: value})})
	e.log.Info().Str("caller", caller).Str("field", field).Str("value", value).Msg("parameter updated")
	return nil
}

func (e *Engine) SetBufferWindow(ctx context.Context, caller string, secs int64) error {
	return e.setParam(caller, "buffer_secs", fmt.Sprint(secs), func(p *Params) { p.BufferSecs = secs })
}

func (e *Engine) SetBetBounds(ctx context.Context, caller string, minBet, maxBet int64) error {
	return e.setParam(caller, "bet_bounds", fmt.Sprintf("[%d, %d]", minBet, maxBet), func(p *Params) {
		p.MinBet = minBet
		p.MaxBet = maxBet
	})
}

func (e *Engine) SetFlatDispatchFee(ctx context.Context, caller string, fee int64) error {
	return e.setParam(caller, "flat_dispatch_fee", fmt.Sprint(fee), func(p *Params) { p.FlatDispatchFee = fee })
}

func (e *Engine) SetTreasuryFeeBps(ctx context.Context, caller string, bps int64) error {
	return e.setParam(caller, "treasury_fee_bps", fmt.Sprint(bps), func(p *Params) { p.TreasuryFeeBps = bps })
}

func (e *Engine) SetTreasury(ctx context.Context, caller string, account string) error {
	return e.setParam(caller, "treasury", account, func(p *Params) { p.Treasury = bank.Account(account) })
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Round returns a copy of the round record and its derived phase.
func (e *Engine) Round(id string) (*Round, Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rounds[id]
	if !ok {
		return nil, PhaseUnstarted, fmt.Errorf("%w: round %s", ErrNotFound, id)
	}
	return r.clone(), r.PhaseAt(e.now().Unix(), e.params.BufferSecs), nil
}

// Wager returns a copy of the participant's wager in a round.
func (e *Engine) Wager(roundID, participant string) (*Wager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.wagers[WagerKey{RoundID: roundID, Participant: participant}]
	if !ok {
		return nil, fmt.Errorf("%w: wager %s/%s", ErrNotFound, roundID, participant)
	}
	return w.clone(), nil
}

// Participants returns the index slice [from, to), clamped.
func (e *Engine) Participants(roundID string, from, to int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rounds[roundID]; !ok {
		return nil, fmt.Errorf("%w: round %s", ErrNotFound, roundID)
	}
	ids := e.index[roundID]
	if from < 0 {
		from = 0
	}
	if to > len(ids) || to == 0 {
		to = len(ids)
	}
	if from > to {
		from = to
	}
	out := make([]string, to-from)
	copy(out, ids[from:to])
	return out, nil
}

// Claimable previews the payout a participant would receive right now,
// without mutating anything.
func (e *Engine) Claimable(roundID, participant string) (int64, Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rounds[roundID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: round %s", ErrNotFound, roundID)
	}
	w, ok := e.wagers[WagerKey{RoundID: roundID, Participant: participant}]
	if !ok {
		return 0, 0, fmt.Errorf("%w: wager %s/%s", ErrNotFound, roundID, participant)
	}
	if w.Claimed {
		return 0, 0, statef("already claimed")
	}
	return Payout(r, w, e.now().Unix(), e.params.BufferSecs)
}

// Params returns the current parameter set.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Sequence returns the next event sequence number.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (e *Engine) envelope(t event.Type, roundID, caller string, payload any) event.Envelope {
	env := event.Envelope{
		Sequence:  e.seq,
		EventID:   uuid.New(),
		Type:      t,
		RoundID:   roundID,
		Caller:    caller,
		Timestamp: e.now(),
		Payload:   payload,
	}
	e.seq++
	return env
}

func (e *Engine) emit(out Output) {
	if e.persistCh != nil {
		e.persistCh <- out
	}
	if e.publishCh != nil {
		select {
		case e.publishCh <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) balanceRows(accounts ...bank.Account) []BalanceRow {
	rows := make([]BalanceRow, 0, len(accounts))
	seen := make(map[bank.Account]bool, len(accounts))
	for _, a := range accounts {
		if seen[a] {
			continue
		}
		seen[a] = true
		rows = append(rows, BalanceRow{Account: string(a), Balance: e.bank.Balance(a)})
	}
	return rows
}
