// Package retention removes old delivery history.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultHorizon is how long deliveries are kept.
const DefaultHorizon = 90 * 24 * time.Hour

// Store deletes deliveries older than a cutoff.
type Store interface {
	// PurgeDeliveries deletes deliveries created before the cutoff together
	// with their queue entries and returns the number of deliveries removed.
	PurgeDeliveries(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper enforces the retention horizon.
type Sweeper struct {
	store   Store
	horizon time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithHorizon overrides the retention horizon.
func WithHorizon(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.horizon = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper with the default 90 day horizon.
func NewSweeper(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:   store,
		horizon: DefaultHorizon,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Horizon returns the retention horizon.
func (s *Sweeper) Horizon() time.Duration { return s.horizon }

// Cutoff returns the creation time before which deliveries are removed.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().UTC().Add(-s.horizon)
}

// Sweep deletes expired deliveries and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()

	n, err := s.store.PurgeDeliveries(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "retention sweep", "deleted", n, "cutoff", cutoff)
	}

	return n, nil
}
