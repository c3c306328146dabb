package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically runs the manager's timeout sweep on its own goroutine.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper running the timeout scan at the given interval.
func NewSweeper(mgr *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		mgr:      mgr,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Ctx(ctx).Info().Dur("interval", s.interval).Msg("timeout sweeper started")
	for {
		select {
		case <-s.stop:
			log.Ctx(ctx).Info().Msg("timeout sweeper stopped")
			return
		case <-ctx.Done():
			log.Ctx(ctx).Info().Msg("timeout sweeper context canceled")
			return
		case <-ticker.C:
			if swept := s.mgr.SweepExpired(ctx); swept > 0 {
				log.Ctx(ctx).Info().Int("count", swept).Msg("interrupted expired sessions")
			}
		}
	}
}
