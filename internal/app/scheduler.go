package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/metrics"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

// Job is a periodic sweep. Run returns how many items it released.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Scheduler runs sweep jobs on a fixed interval until stopped.
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(interval time.Duration, logger *zap.Logger, m *metrics.Metrics, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		metrics:  m,
		stopChan: make(chan struct{}),
	}
}

// Start launches one goroutine per job. Each job runs immediately, then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting background scheduler", zap.Duration("interval", s.interval), zap.Int("jobs", len(s.jobs)))
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop signals every job and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// RunOnce runs every job a single time in order.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		s.run(ctx, job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if fatal := s.run(ctx, job); fatal {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if fatal := s.run(ctx, job); fatal {
				return
			}
		case <-s.stopChan:
			s.logger.Info("sweep job stopped", zap.String("job", job.Name))
			return
		case <-ctx.Done():
			s.logger.Info("sweep job cancelled", zap.String("job", job.Name))
			return
		}
	}
}

// run executes one pass and reports whether it hit a consistency error. Retrying
// cannot repair stored data, so such a job is not scheduled again.
func (s *Scheduler) run(ctx context.Context, job Job) bool {
	started := time.Now()
	released, err := job.Run(ctx)
	took := time.Since(started)
	s.metrics.ObserveSweep(job.Name, released, took)

	if apperror.IsFatal(err) {
		s.logger.Error("sweep job found inconsistent data, stopping job", zap.String("job", job.Name), zap.Error(err))
		return true
	}
	if err != nil {
		s.logger.Error("sweep job failed", zap.String("job", job.Name), zap.Int("released", released), zap.Error(err))
		return false
	}
	if released > 0 {
		s.logger.Info("sweep job released holds", zap.String("job", job.Name), zap.Int("released", released), zap.Duration("took", took))
	}
	return false
}
