// ABOUTME: Periodic background expiry sweep across cache namespaces
// ABOUTME: Fixed interval with an explicit guard against overlapping sweeps

package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often the background sweep fires.
const DefaultSweepInterval = 30 * time.Minute

// Sweeper runs CleanExpired over a set of caches on a fixed interval. The
// timer fires unconditionally, so RunOnce carries its own overlap guard: a
// tick that lands while a sweep is still running is skipped.
type Sweeper struct {
	caches   []*Cache
	interval time.Duration
	log      *slog.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSweeper creates a sweeper over caches. interval <= 0 takes the default.
func NewSweeper(interval time.Duration, log *slog.Logger, caches ...*Cache) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		caches:   caches,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit. A sweep in
// flight finishes normally.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce sweeps every cache once. Returns the number of entries removed,
// or -1 when the call was skipped because a sweep was already running.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("sweep already running, skipping tick")
		return -1
	}
	defer s.running.Store(false)

	total := 0
	for _, c := range s.caches {
		removed, err := c.CleanExpired(ctx)
		if err != nil {
			s.log.Warn("expiry sweep failed", "namespace", c.Name(), "error", err)
			continue
		}
		total += removed
	}
	if total > 0 {
		s.log.Info("expiry sweep removed entries", "count", total)
	}
	return total
}
