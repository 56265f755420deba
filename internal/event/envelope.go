package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type discriminates event payloads in the log and on the outbound stream.
type Type string

const (
	TypeRoundStarted        Type = "round_started"
	TypeRoundLocked         Type = "round_locked"
	TypeRoundResolved       Type = "round_resolved"
	TypeBetPlaced           Type = "bet_placed"
	TypeClaimSettled        Type = "claim_settled"
	TypeParamsUpdated       Type = "params_updated"
	TypeServiceSuspended    Type = "service_suspended"
	TypeServiceResumed      Type = "service_resumed"
	TypeEmergencyWithdrawal Type = "emergency_withdrawal"
)

// Envelope wraps every event emitted by the market engine. Sequence is the
// engine's monotonic counter, assigned under the operation lock, so the
// event log totally orders all state changes.
type Envelope struct {
	Sequence  int64     `json:"sequence"`
	EventID   uuid.UUID `json:"event_id"`
	Type      Type      `json:"type"`
	RoundID   string    `json:"round_id,omitempty"`
	Caller    string    `json:"caller,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IdempotencyKey is the stable dedup key for persisted and published copies.
func (e Envelope) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", e.Type, e.RoundID, e.Sequence)
}

// RoundStarted carries the timing window fixed at creation.
type RoundStarted struct {
	RoundID   string `json:"round_id"`
	Metadata  string `json:"metadata,omitempty"`
	StartTime int64  `json:"start_time"`
	LockTime  int64  `json:"lock_time"`
	CloseTime int64  `json:"close_time"`
}

// RoundLocked records the lock price.
type RoundLocked struct {
	RoundID   string `json:"round_id"`
	LockPrice int64  `json:"lock_price"`
}

// RoundResolved carries the final round record.
type RoundResolved struct {
	RoundID     string `json:"round_id"`
	LockPrice   int64  `json:"lock_price"`
	ClosePrice  int64  `json:"close_price"`
	BullTotal   int64  `json:"bull_total"`
	BearTotal   int64  `json:"bear_total"`
	RewardPool  int64  `json:"reward_pool"`
	TreasuryCut int64  `json:"treasury_cut"`
	Draw        bool   `json:"draw"`
}

// BetPlaced records a successful wager placement.
type BetPlaced struct {
	RoundID     string `json:"round_id"`
	Participant string `json:"participant"`
	Position    string `json:"position"`
	Amount      int64  `json:"amount"`
}

// ClaimSettled records one wager settled by either path. Result uses the
// wire codes win=1, refund=0, lose=-1. Fee is the flat dispatch fee
// deducted on the push path, zero on pull claims.
type ClaimSettled struct {
	RoundID     string `json:"round_id"`
	Participant string `json:"participant"`
	Amount      int64  `json:"amount"`
	Result      int8   `json:"result"`
	Fee         int64  `json:"fee,omitempty"`
}

// ParamsUpdated names the parameter that changed.
type ParamsUpdated struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// EmergencyWithdrawal records an admin drain from escrow to treasury.
type EmergencyWithdrawal struct {
	Amount int64 `json:"amount"`
}
