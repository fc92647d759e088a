package invalidation

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"go.hackfix.me/switchboard/cache"
)

// DefaultSweepInterval is the default time between two sweeps.
const DefaultSweepInterval = time.Minute

// Observer is notified of every sweep. It's used to export metrics.
type Observer interface {
	ObserveSweep(res SweepResult, dur time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSweep(SweepResult, time.Duration, error) {}

// Sweeper periodically sweeps a Queue, and collects expired cache entries if
// the store supports it.
type Sweeper struct {
	queue    *Queue
	clock    clock.Clock
	interval time.Duration
	grace    time.Duration
	observer Observer
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock sets the clock used for ticking and for computing the cutoff.
func WithClock(c clock.Clock) SweeperOption {
	return func(s *Sweeper) {
		s.clock = c
	}
}

// WithInterval sets the time between two sweeps.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = d
	}
}

// WithGracePeriod sets how old queue entries must be to be swept.
func WithGracePeriod(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.grace = d
	}
}

// WithObserver sets the sweep observer.
func WithObserver(o Observer) SweeperOption {
	return func(s *Sweeper) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewSweeper returns a new Sweeper of queue.
func NewSweeper(queue *Queue, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		queue:    queue,
		clock:    clock.New(),
		interval: DefaultSweepInterval,
		grace:    DefaultGracePeriod,
		observer: nopObserver{},
		logger:   logger.With("component", "sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run sweeps the queue every interval until ctx is done. Sweep errors are
// logged and don't stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Debug("sweeper disabled")
		return
	}

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("sweeper started", "interval", s.interval, "grace", s.grace)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := s.clock.Now()
	res, err := s.queue.Sweep(ctx, start, s.grace)
	s.observer.ObserveSweep(res, s.clock.Since(start), err)
	if err != nil {
		s.logger.Error("failed sweeping cache queue", "error", err.Error())
		return res, err
	}
	if res.Deleted > 0 {
		s.logger.Info("flushed queued cache tags", "tags", len(res.Tags), "entries", res.Deleted)
	}

	if gc, ok := s.queue.Store().(cache.GarbageCollector); ok {
		n, gcErr := gc.CollectGarbage(ctx)
		if gcErr != nil {
			s.logger.Warn("failed collecting expired cache entries", "error", gcErr.Error())
		} else if n > 0 {
			s.logger.Debug("collected expired cache entries", "entries", n)
		}
	}

	return res, nil
}
