package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the offline cache maintenance the scheduler drives.
type Sweeper interface {
	Activate(ctx context.Context) (int64, error)
	Sweep(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Pruner drops finished resend countdowns.
type Pruner interface {
	Prune() int
}

type Scheduler struct {
	c   *cron.Cron
	log *slog.Logger
}

func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{
		c:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log: log.With("component", "jobs"),
	}
}

// AddCacheSweep registers the periodic cache cleanup: stale versions are
// removed and current entries older than maxAge expire.
func (s *Scheduler) AddCacheSweep(spec string, cache Sweeper, maxAge time.Duration) error {
	_, err := s.c.AddFunc(spec, func() { s.sweepCache(cache, maxAge) })
	if err != nil {
		return fmt.Errorf("schedule cache sweep %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) AddCooldownPrune(spec string, p Pruner) error {
	_, err := s.c.AddFunc(spec, func() {
		if n := p.Prune(); n > 0 {
			s.log.Debug("cooldowns_pruned", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cooldown prune %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) sweepCache(cache Sweeper, maxAge time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dropped, err := cache.Activate(ctx)
	if err != nil {
		s.log.Error("cache_activate_failed", "error", err)
		return
	}
	expired, err := cache.Sweep(ctx, maxAge)
	if err != nil {
		s.log.Error("cache_sweep_failed", "error", err)
		return
	}
	s.log.Info("cache_swept", "old_versions", dropped, "expired", expired)
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info("scheduler started", "jobs", len(s.c.Entries()))
}

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}
