package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSchedulerRunsJobsOnInterval(t *testing.T) {
	var runs atomic.Int32

	s := New(zap.NewNop(), Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.After(time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	s.Wait()
}

func TestSchedulerSurvivesErrorsAndPanics(t *testing.T) {
	var runs atomic.Int32

	s := New(zap.NewNop(), Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := runs.Add(1)
			switch n {
			case 1:
				return errors.New("transient")
			case 2:
				panic("boom")
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.After(time.Second)
	for runs.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("job stopped after %d runs", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	s.Wait()
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	var runs atomic.Int32

	s := New(zap.NewNop(), Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Wait()

	final := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != final {
		t.Errorf("job ran %d more times after stop", runs.Load()-final)
	}
}

func TestSchedulerRunsJobsIndependently(t *testing.T) {
	var fast, slow atomic.Int32

	s := New(zap.NewNop(),
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "slow", Interval: 500 * time.Millisecond, Run: func(ctx context.Context) error {
			slow.Add(1)
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.After(time.Second)
	for fast.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("fast job ran %d times before deadline", fast.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	s.Wait()

	if slow.Load() > fast.Load() {
		t.Errorf("slow job ran %d times, fast %d", slow.Load(), fast.Load())
	}
}
