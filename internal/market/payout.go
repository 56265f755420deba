package market

import "github.com/x3na-dev/x3na/internal/money"

// Result classifies a settled wager. The numeric values are the wire codes
// carried on claim-settled events.
type Result int8

const (
	ResultLose   Result = -1
	ResultRefund Result = 0
	ResultWin    Result = 1
)

func (r Result) String() string {
	switch r {
	case ResultWin:
		return "win"
	case ResultRefund:
		return "refund"
	case ResultLose:
		return "lose"
	default:
		return "unknown"
	}
}

// Payout computes the settlement for one wager against a finished round.
// It is a pure function of the round record, the wager, and the observation
// instant; it never mutates either record.
//
//   - Refund: draw or expired-unresolved round — the original stake, no fee.
//   - Lose: zero.
//   - Win: floor(amount * rewardPool / winningTotal). The sum of all win
//     payouts never exceeds the reward pool; each truncation loses strictly
//     less than one micro-unit, left unclaimed in the pool.
//
// Returns ErrTiming if the round outcome is not yet determinable.
func Payout(r *Round, w *Wager, now, buffer int64) (int64, Result, error) {
	if !r.FinishedAt(now, buffer) {
		return 0, 0, timingf("round %s not finished", r.ID)
	}

	if r.RefundableAt(now, buffer) {
		return w.Amount, ResultRefund, nil
	}

	if w.Position != r.Winner() {
		return 0, ResultLose, nil
	}

	winningTotal := r.WinningTotal()
	if winningTotal == 0 {
		// Resolved round with no stake on the winning side. Nothing to pay;
		// the reward pool stays in escrow.
		return 0, ResultWin, nil
	}

	return money.MulDivFloor(w.Amount, r.RewardPool, winningTotal), ResultWin, nil
}
