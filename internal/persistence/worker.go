package persistence

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/x3na-dev/x3na/internal/market"
	"github.com/x3na-dev/x3na/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. The
// channel uses blocking sends from the engine, so if this worker falls
// behind, the engine stalls — no output is ever lost.
type Worker struct {
	writer       *Writer
	db           *sql.DB
	inputChan    <-chan market.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan market.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the worker loop. It batches incoming outputs and flushes
// either when the batch is full or the flush timeout expires. Blocks until
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]market.Output, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, out)

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops outputs — it retries until the write succeeds or the context
// is cancelled, in which case one final flush runs with a background
// context.
func (w *Worker) flushWithRetry(ctx context.Context, batch []market.Output) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, outputs=%d)",
				attempt, backoff, len(batch))
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return err
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []market.Output) error {
	start := time.Now()

	var rounds []market.Round
	var wagers []market.Wager
	var participants []market.ParticipantRow
	balances := make(map[string]int64)
	for _, out := range batch {
		rounds = append(rounds, out.Rounds...)
		wagers = append(wagers, out.Wagers...)
		participants = append(participants, out.Participants...)
		for _, b := range out.Balances {
			balances[b.Account] = b.Balance
		}
	}
	balanceRows := make([]market.BalanceRow, 0, len(balances))
	for account, balance := range balances {
		balanceRows = append(balanceRows, market.BalanceRow{Account: account, Balance: balance})
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteRounds(ctx, tx, rounds); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_rounds").Inc()
		}
		return err
	}
	if err := w.writer.WriteWagers(ctx, tx, wagers); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_wagers").Inc()
		}
		return err
	}
	if err := w.writer.WriteParticipants(ctx, tx, participants); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_participants").Inc()
		}
		return err
	}
	if err := w.writer.WriteBalances(ctx, tx, balanceRows); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_balances").Inc()
		}
		return err
	}
	if err := w.writer.WriteEvents(ctx, tx, batch); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistRowsWritten.WithLabelValues("rounds").Add(float64(len(rounds)))
		w.metrics.PersistRowsWritten.WithLabelValues("wagers").Add(float64(len(wagers)))
		w.metrics.PersistRowsWritten.WithLabelValues("participants").Add(float64(len(participants)))
		w.metrics.PersistRowsWritten.WithLabelValues("events").Add(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Envelope.Sequence))
	}

	return nil
}
