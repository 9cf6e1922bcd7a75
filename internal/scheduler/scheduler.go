// Package scheduler runs recurring jobs on fixed intervals. It exists so
// the channel sweeps and the reminder job share one lifecycle: start
// together, stop together on shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one recurring task. Run is invoked once per Interval tick; a
// returned error is logged and the schedule keeps going.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a set of jobs, each on its own ticker.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a scheduler over the given jobs.
func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches one goroutine per job. Jobs stop when ctx is cancelled;
// Wait blocks until they have all returned.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info("job scheduled",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

// runOnce executes a single tick. A panicking job must not take the whole
// process down, so panics are caught and logged here.
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job run failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("job run finished",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
}
