package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often a Runner starts a cycle.
const DefaultPollInterval = 5 * time.Second

// Runner calls Worker.ProcessBatch on a fixed interval, for deployments
// without an external scheduler. Cycles of one Runner never overlap; cycles
// of several Runners may.
type Runner struct {
	worker   *Worker
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner around a worker.
func NewRunner(worker *Worker, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runner{
		worker:   worker,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the poll loop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for the running cycle to complete.
// If ctx is done first, Stop returns its error and the cycle keeps running
// in the background.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delivery: stop runner: %w", ctx.Err())
	}
}

func (r *Runner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// In-flight attempts finish even when the loop is cancelled.
			if _, err := r.worker.ProcessBatch(context.WithoutCancel(ctx)); err != nil {
				r.logger.ErrorContext(ctx, "process batch failed", "error", err)
			}
		}
	}
}
