package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

const (
	defaultTickInterval = 15 * time.Minute
	defaultJobLockTTL   = 10 * time.Minute
)

// Job is one maintenance task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type jobLocks interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// SchedulerParams configure a Scheduler. LockKey maps a job name to the
// redis key replicas compete for.
type SchedulerParams struct {
	Logger   *logger.Logger
	Locks    jobLocks
	LockKey  func(job string) string
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	LockTTL  time.Duration
	Jobs     []Job
}

// Scheduler runs every job once per tick. Each job takes its own lock, so
// replicas split the work instead of one replica running everything.
type Scheduler struct {
	logg     *logger.Logger
	locks    jobLocks
	lockKey  func(string) string
	metrics  *metrics.JobMetrics
	interval time.Duration
	lockTTL  time.Duration
	jobs     []Job
	now      func() time.Time
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Locks == nil:
		return nil, errors.New("job lock store required")
	case params.LockKey == nil:
		return nil, errors.New("job lock key func required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	seen := make(map[string]bool, len(params.Jobs))
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		if seen[job.Name()] {
			return nil, fmt.Errorf("job %q registered twice", job.Name())
		}
		seen[job.Name()] = true
		jobs = append(jobs, job)
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	lockTTL := params.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultJobLockTTL
	}
	return &Scheduler{
		logg:     params.Logger,
		locks:    params.Locks,
		lockKey:  params.LockKey,
		metrics:  params.Metrics,
		interval: interval,
		lockTTL:  lockTTL,
		jobs:     jobs,
		now:      time.Now,
	}, nil
}

// Run ticks immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			s.logg.Error(ctx, "cron tick finished with errors", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs each job once in registration order. A failing job does not stop
// the rest; all failures are returned together.
func (s *Scheduler) Tick(ctx context.Context) error {
	var errs error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.runExclusive(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Scheduler) runExclusive(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	key, token := s.lockKey(name), uuid.NewString()
	held, err := s.locks.AcquireLock(jobCtx, key, token, s.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !held {
		s.metrics.Skipped(name)
		s.logg.Debug(jobCtx, "job held by another replica")
		return nil
	}
	defer func() {
		if _, err := s.locks.ReleaseLock(context.WithoutCancel(jobCtx), key, token); err != nil {
			s.logg.Warn(s.logg.WithField(jobCtx, "error", err.Error()), "release job lock failed")
		}
	}()

	start := s.now()
	runErr := job.Run(jobCtx)
	finished := s.now()
	took := finished.Sub(start)
	s.metrics.Finished(name, took, finished, runErr)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if runErr != nil {
		s.logg.Error(jobCtx, "job failed", runErr)
		return runErr
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
