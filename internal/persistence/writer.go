package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/x3na-dev/x3na/internal/market"
)

// Writer persists engine outputs to Postgres using multi-row upserts.
// Rounds, wagers, and balances are upserted to their latest snapshot;
// participants and events are append-only.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// WriteRounds upserts round records.
func (w *Writer) WriteRounds(ctx context.Context, tx *sql.Tx, rounds []market.Round) error {
	if len(rounds) == 0 {
		return nil
	}

	query := `INSERT INTO market.rounds
		(id, metadata, start_time, lock_time, close_time, lock_price, close_price, bull_total, bear_total, reward_pool, resolved)
		VALUES `

	values := make([]string, 0, len(rounds))
	args := make([]interface{}, 0, len(rounds)*11)

	for i, r := range rounds {
		base := i * 11
		values = append(values, placeholders(base, 11))
		args = append(args,
			r.ID, r.Metadata, r.StartTime, r.LockTime, r.CloseTime,
			r.LockPrice, r.ClosePrice, r.BullTotal, r.BearTotal, r.RewardPool, r.Resolved,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (id) DO UPDATE SET
		lock_price = EXCLUDED.lock_price,
		close_price = EXCLUDED.close_price,
		bull_total = EXCLUDED.bull_total,
		bear_total = EXCLUDED.bear_total,
		reward_pool = EXCLUDED.reward_pool,
		resolved = EXCLUDED.resolved`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteWagers upserts wager records. Only the claimed flag ever changes
// after creation.
func (w *Writer) WriteWagers(ctx context.Context, tx *sql.Tx, wagers []market.Wager) error {
	if len(wagers) == 0 {
		return nil
	}

	query := `INSERT INTO market.wagers
		(round_id, participant, position, amount, claimed)
		VALUES `

	values := make([]string, 0, len(wagers))
	args := make([]interface{}, 0, len(wagers)*5)

	for i, wg := range wagers {
		base := i * 5
		values = append(values, placeholders(base, 5))
		args = append(args, wg.RoundID, wg.Participant, wg.Position.String(), wg.Amount, wg.Claimed)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (round_id, participant) DO UPDATE SET claimed = EXCLUDED.claimed`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteParticipants appends participant index rows.
func (w *Writer) WriteParticipants(ctx context.Context, tx *sql.Tx, rows []market.ParticipantRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO market.participants (round_id, seq, participant) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*3)

	for i, p := range rows {
		base := i * 3
		values = append(values, placeholders(base, 3))
		args = append(args, p.RoundID, p.Seq, p.Participant)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (round_id, seq) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteBalances upserts account balance snapshots.
func (w *Writer) WriteBalances(ctx context.Context, tx *sql.Tx, rows []market.BalanceRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO market.balances (account, balance) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*2)

	for i, b := range rows {
		base := i * 2
		values = append(values, placeholders(base, 2))
		args = append(args, b.Account, b.Balance)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEvents appends event log rows. Idempotent on sequence.
func (w *Writer) WriteEvents(ctx context.Context, tx *sql.Tx, outputs []market.Output) error {
	if len(outputs) == 0 {
		return nil
	}

	query := `INSERT INTO market.events
		(sequence, event_id, event_type, round_id, caller, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(outputs))
	args := make([]interface{}, 0, len(outputs)*7)

	for i, out := range outputs {
		env := out.Envelope
		payload, err := json.Marshal(env.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
		}
		base := i * 7
		values = append(values, placeholders(base, 7))
		args = append(args,
			env.Sequence, env.EventID, string(env.Type), env.RoundID, env.Caller, payload, env.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func placeholders(base, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
