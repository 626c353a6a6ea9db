package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/metrics"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

func TestSchedulerRunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	job := Job{Name: "count", Run: func(context.Context) (int, error) {
		calls.Add(1)
		return 2, nil
	}}
	m := metrics.New(prometheus.NewRegistry())

	s := NewScheduler(5*time.Millisecond, zap.NewNop(), m, job)
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
	assert.Equal(t, float64(2*stopped), testutil.ToFloat64(m.SweepExpired.WithLabelValues("count")))
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s := NewScheduler(time.Hour, zap.NewNop(), nil, Job{Name: "noop", Run: func(context.Context) (int, error) {
		return 0, nil
	}})
	s.Start(ctx)
	cancel()

	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}

func TestSchedulerKeepsRunningAfterFailure(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(time.Minute, zap.NewNop(), nil, Job{Name: "flaky", Run: func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("database unavailable")
	}})

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	assert.EqualValues(t, 2, calls.Load())
}

func TestSchedulerStopsJobOnConsistencyError(t *testing.T) {
	var broken, healthy atomic.Int32
	s := NewScheduler(5*time.Millisecond, zap.NewNop(), nil,
		Job{Name: "verify", Run: func(context.Context) (int, error) {
			broken.Add(1)
			return 0, apperror.New(apperror.KindConsistency, "overlapping reservations")
		}},
		Job{Name: "expire", Run: func(context.Context) (int, error) {
			healthy.Add(1)
			return 0, nil
		}},
	)
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return healthy.Load() >= 3 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, broken.Load())
}
