package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most limit running concurrently and returns
// every error. Jobs still waiting for a slot when ctx ends are not started;
// ctx's error is reported for each of them.
func RunPool(ctx context.Context, limit int, jobs []Job) []error {
	if limit < 1 {
		limit = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	sem := semaphore.NewWeighted(int64(limit))

	for _, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer sem.Release(1)
			if err := j(ctx); err != nil {
				fail(err)
			}
		}(job)
	}
	wg.Wait()
	return errs
}
