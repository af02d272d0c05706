package runner_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/fiveworlds/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	jobs := make([]runner.Job, 10)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			count.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(context.Background(), 3, jobs)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func(context.Context) error { return nil },
		func(context.Context) error { return fmt.Errorf("fail") },
		func(context.Context) error { return nil },
	}
	errs := runner.RunPool(context.Background(), 2, jobs)
	if len(errs) != 1 {
		t.Errorf("expected 1 error, got %d", len(errs))
	}
}

func TestPoolRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	jobs := make([]runner.Job, 8)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}
	}
	runner.RunPool(context.Background(), 2, jobs)
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", peak.Load())
	}
}

func TestPoolZeroLimitRunsSerially(t *testing.T) {
	var count atomic.Int32
	jobs := []runner.Job{
		func(context.Context) error { count.Add(1); return nil },
		func(context.Context) error { count.Add(1); return nil },
	}
	if errs := runner.RunPool(context.Background(), 0, jobs); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if count.Load() != 2 {
		t.Errorf("expected 2 jobs, got %d", count.Load())
	}
}

func TestPoolCanceledSkipsWaitingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	release := make(chan struct{})
	jobs := []runner.Job{
		func(context.Context) error {
			started.Add(1)
			cancel()
			<-release
			return nil
		},
		func(context.Context) error { started.Add(1); return nil },
		func(context.Context) error { started.Add(1); return nil },
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	errs := runner.RunPool(ctx, 1, jobs)
	if started.Load() != 1 {
		t.Errorf("expected only the first job to start, got %d", started.Load())
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 cancellation errors, got %v", errs)
	}
}
