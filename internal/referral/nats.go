package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSRecorder forwards referral notifications to the referral subsystem
// over JetStream. Subjects: market.referral.volume, market.referral.register.
type NATSRecorder struct {
	js jetstream.JetStream
}

func NewNATSRecorder(js jetstream.JetStream) *NATSRecorder {
	return &NATSRecorder{js: js}
}

type volumeMsg struct {
	Participant string    `json:"participant"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

type registerMsg struct {
	Participant string    `json:"participant"`
	Referrer    string    `json:"referrer"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r *NATSRecorder) RecordVolume(ctx context.Context, participant string, amount int64) error {
	data, err := json.Marshal(volumeMsg{Participant: participant, Amount: amount, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal volume: %w", err)
	}
	_, err = r.js.Publish(ctx, "market.referral.volume", data)
	return err
}

func (r *NATSRecorder) RegisterReferral(ctx context.Context, participant, referrer string) error {
	data, err := json.Marshal(registerMsg{Participant: participant, Referrer: referrer, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal register: %w", err)
	}
	_, err = r.js.Publish(ctx, "market.referral.register", data)
	return err
}

// EnsureReferralStream creates the stream carrying referral notifications.
func EnsureReferralStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "MARKET_REFERRAL",
		Subjects:  []string{"market.referral.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create referral stream: %w", err)
	}
	return nil
}
