package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/x3na-dev/x3na/internal/bank"
	"github.com/x3na-dev/x3na/internal/market"
)

// Loader reads the durable ledgers back into memory at startup. Recovery is
// a full scan: rounds are never deleted and stay queryable indefinitely, so
// the working set is the whole history.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load returns the complete engine snapshot: all rounds, wagers,
// participant indexes, account balances, and the next event sequence.
func (l *Loader) Load(ctx context.Context) (market.Snapshot, error) {
	var snap market.Snapshot

	rounds, err := l.loadRounds(ctx)
	if err != nil {
		return snap, fmt.Errorf("load rounds: %w", err)
	}
	wagers, err := l.loadWagers(ctx)
	if err != nil {
		return snap, fmt.Errorf("load wagers: %w", err)
	}
	participants, err := l.loadParticipants(ctx)
	if err != nil {
		return snap, fmt.Errorf("load participants: %w", err)
	}
	balances, err := l.loadBalances(ctx)
	if err != nil {
		return snap, fmt.Errorf("load balances: %w", err)
	}
	seq, err := l.nextSequence(ctx)
	if err != nil {
		return snap, fmt.Errorf("load sequence: %w", err)
	}

	snap.Rounds = rounds
	snap.Wagers = wagers
	snap.Participants = participants
	snap.Balances = balances
	snap.Sequence = seq
	return snap, nil
}

func (l *Loader) loadRounds(ctx context.Context) ([]market.Round, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, metadata, start_time, lock_time, close_time,
		       lock_price, close_price, bull_total, bear_total, reward_pool, resolved
		FROM market.rounds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Round
	for rows.Next() {
		var r market.Round
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

func (l *Loader) loadWagers(ctx context.Context) ([]market.Wager, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, participant, position, amount, claimed
		FROM market.wagers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Wager
	for rows.Next() {
		var w market.Wager
		var position string
		if err := rows.Scan(&w.RoundID, &w.Participant, &position, &w.Amount, &w.Claimed); err != nil {
			return nil, err
		}
		pos, ok := market.ParsePosition(position)
		if !ok {
			return nil, fmt.Errorf("wager %s/%s has unknown position %q", w.RoundID, w.Participant, position)
		}
		w.Position = pos
		out = append(out, w)
	}
	return out, rows.Err()
}

func (l *Loader) loadParticipants(ctx context.Context) ([]market.ParticipantRow, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, seq, participant
		FROM market.participants
		ORDER BY round_id, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.ParticipantRow
	for rows.Next() {
		var p market.ParticipantRow
		if err := rows.Scan(&p.RoundID, &p.Seq, &p.Participant); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (l *Loader) loadBalances(ctx context.Context) (map[bank.Account]int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT account, balance FROM market.balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[bank.Account]int64)
	for rows.Next() {
		var account string
		var balance int64
		if err := rows.Scan(&account, &balance); err != nil {
			return nil, err
		}
		out[bank.Account(account)] = balance
	}
	return out, rows.Err()
}

func (l *Loader) nextSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM market.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64 + 1, nil
}
