package store

import (
	"context"
	"time"

	"github.com/pion/logging"
	"yuzu/rendezvous/internal/metrics"
)

// DefaultSweepInterval is used when a non-positive interval is configured.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically evicts expired sessions so abandoned ones are
// reclaimed even if nobody looks them up again. It only ever deletes.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      logging.LeveledLogger

	// OnExpire receives the ids removed by each sweep. It runs after every
	// pass, including empty ones.
	OnExpire func(ctx context.Context, ids []string)
}

func NewSweeper(st Store, interval time.Duration, log logging.LeveledLogger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: st, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass and returns the number of evicted sessions.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	ids, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.log.Warnf("sweep failed after %d evictions: %v", len(ids), err)
	}
	if len(ids) > 0 {
		metrics.SessionsSwept.Add(float64(len(ids)))
		s.log.Debugf("swept %d expired sessions", len(ids))
	}
	if s.OnExpire != nil {
		s.OnExpire(ctx, ids)
	}
	return len(ids)
}
