// Package worker runs the periodic checkpoint sweep and reacts to ledger
// events with eager checkpoints.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MYH-Projet/dirhamy/internal/amqp"
	"github.com/MYH-Projet/dirhamy/internal/core"
	"github.com/MYH-Projet/dirhamy/internal/log"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	AccountsAfter(ctx context.Context, afterID int64, limit int) ([]core.Account, error)
	Checkpoint(ctx context.Context, accountID int64, at time.Time) (core.BalanceSnapshot, error)
	PendingTransactions(ctx context.Context, accountID int64) (int64, error)
}

// Publisher announces finished sweeps.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

type Config struct {
	PageSize    int
	Concurrency int
	// EagerThreshold is the number of transactions after the latest snapshot
	// that triggers an immediate checkpoint. Zero disables eager checkpoints.
	EagerThreshold int64
}

// SnapshotWorker appends a fresh checkpoint to every account on a schedule.
type SnapshotWorker struct {
	ledger    Ledger
	publisher Publisher
	cfg       Config
	now       func() time.Time
	logger    *log.Logger
}

type Option func(*SnapshotWorker)

// WithPublisher publishes an EventSnapshotSweep after every daily sweep.
func WithPublisher(p Publisher) Option {
	return func(w *SnapshotWorker) { w.publisher = p }
}

func NewSnapshotWorker(ledger Ledger, cfg Config, opts ...Option) *SnapshotWorker {
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	w := &SnapshotWorker{
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
		logger: log.Default(log.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunDailySnapshotSweep checkpoints every account at the current instant,
// walking accounts by id one page at a time. A failing account is logged and
// counted and never stops the sweep.
func (w *SnapshotWorker) RunDailySnapshotSweep(ctx context.Context) (core.SweepResult, error) {
	at := w.now()
	res, err := w.sweep(ctx, log.OpSweep, func(ctx context.Context, a core.Account) (bool, error) {
		_, err := w.ledger.Checkpoint(ctx, a.ID, at)
		return err == nil, err
	})
	if err != nil {
		return res, err
	}
	w.announce(ctx, at, res)
	return res, nil
}

// announce publishes the sweep counts. A publish failure is only logged.
func (w *SnapshotWorker) announce(ctx context.Context, at time.Time, res core.SweepResult) {
	if w.publisher == nil {
		return
	}
	ev := amqp.NewLedgerEvent(amqp.EventSnapshotSweep, "")
	ev.Timestamp = at
	ev.Processed, ev.Failed = res.Processed, res.Failed
	if err := w.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish sweep event",
			log.FieldEventType, string(ev.Type),
			log.FieldError, err)
	}
}

// CatchUp checkpoints only the accounts whose pending history reached the
// eager threshold. It recovers from events missed while the worker was down.
func (w *SnapshotWorker) CatchUp(ctx context.Context) (core.SweepResult, error) {
	if w.cfg.EagerThreshold <= 0 {
		return core.SweepResult{}, nil
	}
	at := w.now()
	return w.sweep(ctx, log.OpCheckpoint, func(ctx context.Context, a core.Account) (bool, error) {
		return w.checkpointIfDue(ctx, a.ID, at)
	})
}

// sweep applies fn to every account. fn reports whether it did any work.
func (w *SnapshotWorker) sweep(ctx context.Context, op string, fn func(context.Context, core.Account) (bool, error)) (core.SweepResult, error) {
	start := time.Now()
	var processed, failed atomic.Int64

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return result(&processed, &failed), err
		}

		page, err := w.ledger.AccountsAfter(ctx, cursor, w.cfg.PageSize)
		if err != nil {
			return result(&processed, &failed), fmt.Errorf("load accounts after %d: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(w.cfg.Concurrency)
		for _, a := range page {
			a := a
			g.Go(func() error {
				done, err := fn(ctx, a)
				if err != nil {
					failed.Add(1)
					w.logger.ErrorContext(ctx, "Account checkpoint failed",
						log.NewFields().WithOperation(op).WithAccount(a.ID).WithError(err).ToSlice()...)
					return nil
				}
				if done {
					processed.Add(1)
				}
				return nil
			})
		}
		g.Wait()

		cursor = page[len(page)-1].ID
		if len(page) < w.cfg.PageSize {
			break
		}
	}

	res := result(&processed, &failed)
	w.logger.InfoContext(ctx, "Snapshot sweep completed",
		log.FieldOperation, op,
		log.FieldProcessed, res.Processed,
		log.FieldFailed, res.Failed,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

func result(processed, failed *atomic.Int64) core.SweepResult {
	return core.SweepResult{Processed: int(processed.Load()), Failed: int(failed.Load())}
}

// HandleLedgerEvent checkpoints the accounts named by a mutation event once
// their pending history reaches the eager threshold. A returned error requeues
// the event.
func (w *SnapshotWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	// Sweep announcements share the queue and name no accounts.
	if w.cfg.EagerThreshold <= 0 || ev.Type == amqp.EventSnapshotSweep {
		return nil
	}

	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	logger.DebugContext(ctx, "Processing ledger event",
		log.FieldEventType, string(ev.Type),
		"accounts", ev.AccountIDs)

	at := w.now()
	var failures []error
	for _, id := range ev.AccountIDs {
		if _, err := w.checkpointIfDue(ctx, id, at); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("eager checkpoint failed for %d of %d accounts: %w", len(failures), len(ev.AccountIDs), failures[0])
	}
	return nil
}

func (w *SnapshotWorker) checkpointIfDue(ctx context.Context, accountID int64, at time.Time) (bool, error) {
	pending, err := w.ledger.PendingTransactions(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("count pending transactions of account %d: %w", accountID, err)
	}
	if pending < w.cfg.EagerThreshold {
		return false, nil
	}
	if _, err := w.ledger.Checkpoint(ctx, accountID, at); err != nil {
		return false, err
	}
	w.logger.InfoContext(ctx, "Eager checkpoint written",
		log.FieldAccountID, accountID,
		log.FieldPending, pending)
	return true, nil
}
