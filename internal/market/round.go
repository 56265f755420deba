package market

// Position is the side of a wager: Bull bets the reference price rises
// across the round window, Bear bets it falls.
type Position int8

const (
	PositionBull Position = iota
	PositionBear
)

func (p Position) String() string {
	switch p {
	case PositionBull:
		return "bull"
	case PositionBear:
		return "bear"
	default:
		return "unknown"
	}
}

// ParsePosition maps the wire representation back to a Position.
func ParsePosition(s string) (Position, bool) {
	switch s {
	case "bull":
		return PositionBull, true
	case "bear":
		return PositionBear, true
	default:
		return 0, false
	}
}

// Phase is the lifecycle phase of a round. Only Open through Resolved are
// ever implied by stored fields; PhaseExpiredUnresolved is derived at read
// time and is never written back — an abandoned round stays "not ended" in
// the ledger while every consumer observes a terminal refund outcome.
type Phase int8

const (
	PhaseUnstarted Phase = iota
	PhaseOpen
	PhaseAwaitingLock
	PhaseLocked
	PhaseResolved
	PhaseExpiredUnresolved
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhaseOpen:
		return "open"
	case PhaseAwaitingLock:
		return "awaiting_lock"
	case PhaseLocked:
		return "locked"
	case PhaseResolved:
		return "resolved"
	case PhaseExpiredUnresolved:
		return "expired_unresolved"
	default:
		return "unknown"
	}
}

// Round is the durable round record. Timestamps are unix seconds, fixed at
// creation with StartTime < LockTime < CloseTime. Prices are signed with
// zero meaning "not yet set"; LockPrice and ClosePrice are each set exactly
// once. BullTotal and BearTotal only grow while the round is open, and
// RewardPool is computed exactly once, at resolution.
type Round struct {
	ID        string
	Metadata  string
	StartTime int64
	LockTime  int64
	CloseTime int64

	LockPrice  int64
	ClosePrice int64

	BullTotal  int64
	BearTotal  int64
	RewardPool int64

	// Resolved distinguishes a genuine resolution from the zero ClosePrice
	// default. It is the stored terminal marker; expiry never sets it.
	Resolved bool
}

// Total returns the combined stake on both sides.
func (r *Round) Total() int64 { return r.BullTotal + r.BearTotal }

// HasLocked reports whether the lock price has been recorded.
func (r *Round) HasLocked() bool { return r.LockPrice != 0 }

// PhaseAt derives the lifecycle phase as observed at the given instant.
// buffer is the grace window (seconds) after LockTime/CloseTime during
// which the corresponding operator action remains valid.
func (r *Round) PhaseAt(now, buffer int64) Phase {
	switch {
	case r.Resolved:
		return PhaseResolved
	case now > r.CloseTime+buffer:
		return PhaseExpiredUnresolved
	case r.HasLocked():
		return PhaseLocked
	case now >= r.LockTime:
		return PhaseAwaitingLock
	case now >= r.StartTime:
		return PhaseOpen
	default:
		return PhaseUnstarted
	}
}

// RefundableAt reports whether every wager on this round is observed as
// fully refundable at the given instant: a price-tie draw, or the round was
// never resolved and the close buffer has elapsed. Both cases carry the
// same refundable classification; the winning side is deliberately not
// consulted on this path.
func (r *Round) RefundableAt(now, buffer int64) bool {
	if r.Resolved {
		return r.ClosePrice == r.LockPrice
	}
	return now > r.CloseTime+buffer
}

// FinishedAt reports whether the round outcome is determinable at the given
// instant: resolved, or expired past the close buffer.
func (r *Round) FinishedAt(now, buffer int64) bool {
	return r.Resolved || now > r.CloseTime+buffer
}

// Winner returns the winning side of a resolved, non-draw round.
func (r *Round) Winner() Position {
	if r.ClosePrice > r.LockPrice {
		return PositionBull
	}
	return PositionBear
}

// WinningTotal returns the stake pool of the winning side.
func (r *Round) WinningTotal() int64 {
	if r.Winner() == PositionBull {
		return r.BullTotal
	}
	return r.BearTotal
}

func (r *Round) clone() *Round {
	c := *r
	return &c
}
