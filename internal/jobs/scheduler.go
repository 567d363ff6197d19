package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jnst/trading-event-queue/internal/lock"
	"github.com/jnst/trading-event-queue/internal/metrics"
)

var (
	// ErrUnknownJob is returned by RunOnce for an unregistered job id.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when another instance of the job holds its lock.
	ErrJobRunning = errors.New("job already running")
)

// Scheduler runs each job on its own ticker. A job never overlaps itself: the in-process
// lock covers this scheduler and the optional distributed lock covers other replicas.
type Scheduler struct {
	jobs        []Job
	local       *lock.LocalLocker
	distributed lock.Locker
	lockTTL     time.Duration
	logger      *slog.Logger
}

// NewScheduler creates a Scheduler. distributed may be nil.
func NewScheduler(logger *slog.Logger, distributed lock.Locker, lockTTL time.Duration, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:        jobs,
		local:       lock.NewLocalLocker(),
		distributed: distributed,
		lockTTL:     lockTTL,
		logger:      logger,
	}
}

// Jobs returns the registered job ids.
func (s *Scheduler) Jobs() []string {
	ids := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		ids[i] = job.ID
	}

	return ids
}

// Start runs every job immediately and then at its interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info("job scheduled", slog.String("job", job.ID), slog.Duration("interval", job.Interval))

	// The ticker restarts with the process, so the first run is at start.
	_ = s.execute(ctx, job)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, job)
		}
	}
}

// RunOnce executes the job with the given id immediately and returns its error.
func (s *Scheduler) RunOnce(ctx context.Context, id string) error {
	for _, job := range s.jobs {
		if job.ID == id {
			return s.execute(ctx, job)
		}
	}

	return fmt.Errorf("%w: %s", ErrUnknownJob, id)
}

// execute runs one job under its locks. Failures and panics are logged and returned;
// they never escape as panics.
func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	release, ok, err := s.acquire(ctx, job.ID)
	if err != nil {
		s.logger.Error("job_failed", slog.String("job", job.ID), slog.String("error", err.Error()))
		metrics.JobRuns.WithLabelValues(job.ID, "failed").Inc()
		return err
	}
	if !ok {
		s.logger.Info("job_skipped", slog.String("job", job.ID), slog.String("reason", "already running"))
		metrics.JobRuns.WithLabelValues(job.ID, "skipped").Inc()
		return ErrJobRunning
	}
	defer release(context.WithoutCancel(ctx))

	start := time.Now()
	s.logger.Info("job_started", slog.String("job", job.ID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}

		metrics.JobDuration.WithLabelValues(job.ID).Observe(time.Since(start).Seconds())

		if err != nil {
			s.logger.Error("job_failed", slog.String("job", job.ID), slog.String("error", err.Error()))
			metrics.JobRuns.WithLabelValues(job.ID, "failed").Inc()
			return
		}

		s.logger.Info("job_completed", slog.String("job", job.ID), slog.Duration("duration", time.Since(start)))
		metrics.JobRuns.WithLabelValues(job.ID, "completed").Inc()
	}()

	return job.Run(ctx)
}

// acquire takes the local lock, then the distributed one if configured. The returned
// release frees both.
func (s *Scheduler) acquire(ctx context.Context, id string) (func(context.Context), bool, error) {
	localRelease, ok, err := s.local.TryLock(ctx, id, s.lockTTL)
	if err != nil || !ok {
		return nil, ok, err
	}

	if s.distributed == nil {
		return func(ctx context.Context) { _ = localRelease(ctx) }, true, nil
	}

	remoteRelease, ok, err := s.distributed.TryLock(ctx, id, s.lockTTL)
	if err != nil || !ok {
		_ = localRelease(ctx)
		return nil, ok, err
	}

	return func(ctx context.Context) {
		if err := remoteRelease(ctx); err != nil {
			s.logger.Warn("failed to release job lock", slog.String("job", id), slog.String("error", err.Error()))
		}
		_ = localRelease(ctx)
	}, true, nil
}
