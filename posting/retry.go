/*
retry.go - Background re-derivation of stale sources

PURPOSE:
  A stale flag means a source's stored postings are known to be wrong. The
  worker periodically re-derives every flagged source; success clears the
  flag, failure bumps its attempt count and leaves it for the next round.

CONFIGURATION:
  - Interval:    How often to sweep (default: 1 minute)
  - MaxAttempts: Flags at or past this many attempts are skipped and left for
                 an operator (0 = unlimited)

USAGE:
  w := posting.NewRetryWorker(engine, logger)
  w.Start(ctx)
  // ... later
  w.Stop()
*/
package posting

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type RetryWorker struct {
	Engine      *Engine
	Interval    time.Duration
	MaxAttempts int

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRetryWorker(engine *Engine, logger *slog.Logger) *RetryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryWorker{
		Engine:      engine,
		Interval:    time.Minute,
		MaxAttempts: 10,
		logger:      logger.With("component", "retry_worker"),
	}
}

// Start begins sweeping in the background. Calling Start twice is a no-op.
func (w *RetryWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("retry worker started", "interval", w.Interval, "max_attempts", w.MaxAttempts)
}

// Stop halts the worker and waits for an in-flight sweep to finish.
func (w *RetryWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.cancel = nil
	w.logger.Info("retry worker stopped")
}

func (w *RetryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Repaired int
	Failed   int
	Skipped  int
}

// RunOnce re-derives every flagged source once.
func (w *RetryWorker) RunOnce(ctx context.Context) SweepResult {
	var res SweepResult
	flags, err := w.Engine.StaleSources(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "list stale sources failed", "error", err)
		return res
	}

	for _, f := range flags {
		if ctx.Err() != nil {
			return res
		}
		if w.MaxAttempts > 0 && f.Attempts >= w.MaxAttempts {
			res.Skipped++
			continue
		}
		if _, err := w.Engine.Rederive(ctx, f.Source.Type, f.Source.ID); err != nil {
			res.Failed++
			f.Reason = err.Error()
			if ferr := w.Engine.store.FlagStale(ctx, f); ferr != nil {
				w.logger.ErrorContext(ctx, "record retry failure", "source", f.Source.String(), "error", ferr)
			}
			continue
		}
		res.Repaired++
	}

	if res.Repaired > 0 || res.Failed > 0 || res.Skipped > 0 {
		remaining, _ := w.Engine.StaleSources(ctx)
		w.logger.InfoContext(ctx, "retry sweep completed",
			"repaired", res.Repaired, "failed", res.Failed, "skipped", res.Skipped,
			"oldest_open", staleSince(remaining, w.Engine.now()))
	}
	return res
}
