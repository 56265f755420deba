// Package referral is the boundary to the volume-tiered referral-commission
// subsystem. The market only feeds it: volume on every successful wager and
// registration requests. Commission payout mechanics live entirely on the
// other side.
package referral

import "context"

// Recorder is the collaborator interface consumed by the market engine.
type Recorder interface {
	RecordVolume(ctx context.Context, participant string, amount int64) error
	RegisterReferral(ctx context.Context, participant, referrer string) error
}

// Noop discards all notifications. Used in tests and when the referral
// subsystem is not deployed.
type Noop struct{}

func (Noop) RecordVolume(ctx context.Context, participant string, amount int64) error {
	return nil
}

func (Noop) RegisterReferral(ctx context.Context, participant, referrer string) error {
	return nil
}
