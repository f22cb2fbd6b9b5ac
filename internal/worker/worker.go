// Package worker fans work out over a bounded pool. Used to process
// independent manifest jobs; each job's own write sequence stays sequential,
// so no cross-job state is shared.
package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Options struct {
	// Workers is the pool size. Defaults to 1 (sequential, the original
	// batch behavior).
	Workers int

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	// FailFast cancels remaining work on the first error instead of
	// recording it and continuing.
	FailFast bool
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

// ProcessAll runs the processor over all items and returns input-ordered
// results. Item errors are recorded per-result; only FailFast (or context
// cancellation) aborts the run.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	jobs := make(chan job)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(runCtx); err != nil {
					return
				}
			}
			res, err := processor(runCtx, j.in)
			out[j.idx] = Result[In, Out]{Input: j.in, Output: res, Err: err}
			if err != nil && opts.FailFast {
				fail(err)
				return
			}
		}
	}

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
