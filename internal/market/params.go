package market

import (
	"github.com/x3na-dev/x3na/internal/bank"
	"github.com/x3na-dev/x3na/internal/money"
)

// Params are the runtime-tunable market parameters. Writes go through the
// Engine's admin setters and require the service to be suspended.
type Params struct {
	// BufferSecs is the grace window after LockTime/CloseTime during which
	// the corresponding operator action remains valid.
	BufferSecs int64

	// MinBet and MaxBet bound a single wager, micro-units inclusive.
	MinBet int64
	MaxBet int64

	// FlatDispatchFee is deducted from a push-settled payout when the
	// payout strictly exceeds it. Pull claims never pay it.
	FlatDispatchFee int64

	// DispatchFeeBps is a configured percentage dispatch fee that is never
	// applied by settlement. It existed alongside the flat fee in the
	// original parameterization with no consumer; it is carried so operator
	// tooling round-trips it, and stays inert until its intent is settled.
	DispatchFeeBps int64

	// TreasuryFeeBps is the treasury cut taken from the total pool at
	// resolution, capped at 10000 (100%).
	TreasuryFeeBps int64

	// Treasury is the account credited with treasury cuts, dispatch fees,
	// and emergency withdrawals.
	Treasury bank.Account
}

// DefaultParams mirror the production launch configuration.
func DefaultParams() Params {
	return Params{
		BufferSecs:      30,
		MinBet:          1 * money.Scale / 1000, // 0.001 units
		MaxBet:          500 * money.Scale,
		FlatDispatchFee: 300, // 0.0003 units
		TreasuryFeeBps:  300, // 3%
		Treasury:        "system:treasury",
	}
}

// Validate checks internal consistency of a full parameter set.
func (p Params) Validate() error {
	if p.BufferSecs <= 0 {
		return validationf("buffer window must be positive")
	}
	if p.MinBet <= 0 || p.MaxBet < p.MinBet {
		return validationf("bet bounds [%d, %d] invalid", p.MinBet, p.MaxBet)
	}
	if p.FlatDispatchFee < 0 {
		return validationf("flat dispatch fee must be non-negative")
	}
	if p.TreasuryFeeBps < 0 || p.TreasuryFeeBps > money.BpsDenominator {
		return validationf("treasury fee %d bps exceeds maximum", p.TreasuryFeeBps)
	}
	if p.Treasury == "" {
		return validationf("treasury account must be set")
	}
	return nil
}
