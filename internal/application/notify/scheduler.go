package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs periodic jobs on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.SugaredLogger
	timeout time.Duration
}

// NewScheduler creates a stopped scheduler. Each run gets its own context
// bounded by timeout.
func NewScheduler(log *zap.SugaredLogger, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		log:     log,
		timeout: timeout,
	}
}

// Add registers fn under a standard five-field cron spec.
// PRE: spec parses; name identifies the job in logs
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		started := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Errorw("scheduler_event", "event", "job_failed", "job", name, "error", err)
			return
		}
		s.log.Infow("scheduler_event", "event", "job_done", "job", name, "elapsed_ms", time.Since(started).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Debugw("scheduler_event", "event", "job_scheduled", "next_run", e.Next)
	}
}

// Stop prevents new runs and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
