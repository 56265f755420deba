// Package query serves read-only history from the durable ledgers. The
// engine answers current-state questions from memory; anything that spans
// the whole history (round listings, event logs, wager history, integrity
// checks) reads Postgres directly.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Service provides read-only access to the market tables.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RoundRecord is one persisted round row.
type RoundRecord struct {
	ID         string `json:"id"`
	Metadata   string `json:"metadata,omitempty"`
	StartTime  int64  `json:"start_time"`
	LockTime   int64  `json:"lock_time"`
	CloseTime  int64  `json:"close_time"`
	LockPrice  int64  `json:"lock_price"`
	ClosePrice int64  `json:"close_price"`
	BullTotal  int64  `json:"bull_total"`
	BearTotal  int64  `json:"bear_total"`
	RewardPool int64  `json:"reward_pool"`
	Resolved   bool   `json:"resolved"`
}

// EventRecord is one persisted event log row.
type EventRecord struct {
	Sequence  int64           `json:"sequence"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	RoundID   string          `json:"round_id,omitempty"`
	Caller    string          `json:"caller,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// WagerRecord is one persisted wager row.
type WagerRecord struct {
	RoundID     string `json:"round_id"`
	Participant string `json:"participant"`
	Position    string `json:"position"`
	Amount      int64  `json:"amount"`
	Claimed     bool   `json:"claimed"`
}

// ListRounds returns rounds newest-first, keyset-paginated by start time.
func (s *Service) ListRounds(ctx context.Context, limit int, beforeStart *int64) ([]RoundRecord, error) {
	query := `
		SELECT id, metadata, start_time, lock_time, close_time,
		       lock_price, close_price, bull_total, bear_total, reward_pool, resolved
		FROM market.rounds`
	args := []any{}
	if beforeStart != nil {
		query += ` WHERE start_time < $1`
		args = append(args, *beforeStart)
	}
	query += fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var r RoundRecord
		if err := rows.Scan(
			&r.ID, &r.Metadata, &r.StartTime, &r.LockTime, &r.CloseTime,
			&r.LockPrice, &r.ClosePrice, &r.BullTotal, &r.BearTotal, &r.RewardPool, &r.Resolved,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RoundEvents returns a round's event log ascending, keyset-paginated by
// sequence.
func (s *Service) RoundEvents(ctx context.Context, roundID string, limit int, afterSequence *int64) ([]EventRecord, error) {
	query := `
		SELECT sequence, event_id, event_type, round_id, caller, payload, timestamp
		FROM market.events
		WHERE round_id = $1`
	args := []any{roundID}
	if afterSequence != nil {
		query += ` AND sequence > $2`
		args = append(args, *afterSequence)
	}
	query += fmt.Sprintf(` ORDER BY sequence ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.Sequence, &e.EventID, &e.Type, &e.RoundID, &e.Caller, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ParticipantWagers returns a participant's wagers across all rounds.
func (s *Service) ParticipantWagers(ctx context.Context, participant string, limit int) ([]WagerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.round_id, w.participant, w.position, w.amount, w.claimed
		FROM market.wagers w
		JOIN market.rounds r ON r.id = w.round_id
		WHERE w.participant = $1
		ORDER BY r.start_time DESC
		LIMIT $2`, participant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WagerRecord
	for rows.Next() {
		var w WagerRecord
		if err := rows.Scan(&w.RoundID, &w.Participant, &w.Position, &w.Amount, &w.Claimed); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// IntegrityReport is the result of the persisted-state invariant checks.
type IntegrityReport struct {
	IsHealthy      bool    `json:"is_healthy"`
	BalanceSum     int64   `json:"balance_sum"`
	SequenceGaps   []int64 `json:"sequence_gaps,omitempty"`
	NegativeStakes int     `json:"negative_stakes"`
	LastSequence   int64   `json:"last_sequence"`
}

// VerifyIntegrity checks the durable invariants: the balance book sums to
// zero, the event log has no sequence gaps, and no wager carries a
// non-positive stake.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM market.balances`,
	).Scan(&report.BalanceSum); err != nil {
		return nil, fmt.Errorf("balance sum: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM market.events e1
		LEFT JOIN market.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e2.sequence IS NULL
		ORDER BY e1.sequence
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("sequence gaps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market.wagers WHERE amount <= 0`,
	).Scan(&report.NegativeStakes); err != nil {
		return nil, fmt.Errorf("stake check: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), -1) FROM market.events`,
	).Scan(&report.LastSequence); err != nil {
		return nil, fmt.Errorf("last sequence: %w", err)
	}

	report.IsHealthy = report.BalanceSum == 0 &&
		len(report.SequenceGaps) == 0 &&
		report.NegativeStakes == 0
	return report, nil
}
