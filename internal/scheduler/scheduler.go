// Package scheduler runs periodic housekeeping: purging dead password reset
// requests and idle rate limiter entries.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// StalePurger deletes reset requests that expired or were consumed before
// a cutoff.
type StalePurger interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// Pruner drops idle entries from an in-memory table.
type Pruner interface {
	Prune() int
}

// purgeTimeout bounds one purge run.
const purgeTimeout = time.Minute

type Scheduler struct {
	cron      *cron.Cron
	requests  StalePurger
	pruners   []Pruner
	retention time.Duration

	now func() time.Time
}

// New returns a Scheduler that keeps dead reset requests for retention
// before deleting them.
func New(requests StalePurger, retention time.Duration, pruners ...Pruner) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		requests:  requests,
		pruners:   pruners,
		retention: retention,
		now:       time.Now,
	}
}

// Start runs the housekeeping job on the cron spec.
func (s *Scheduler) Start(spec string) error {
	err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			log.Errorf("Housekeeping failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Infof("Housekeeping scheduled: %v", spec)
	return nil
}

// Stop stops the cron. A running job is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce performs one housekeeping pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	before := s.now().UTC().Add(-s.retention)
	n, err := s.requests.DeleteStale(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to purge reset requests: %w", err)
	}

	pruned := 0
	for _, p := range s.pruners {
		pruned += p.Prune()
	}

	log.Debugf("Purged %v reset requests and %v rate limiter entries", n, pruned)
	return nil
}
