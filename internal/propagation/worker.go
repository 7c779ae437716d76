package propagation

import (
	"context"
	"log/slog"
	"sync"
)

// sampleJob is a unit of work for the worker pool.
type sampleJob struct {
	index int
	time  float64
}

// sampleResult is the output of a single sample.
type sampleResult struct {
	index int
	state StateVector
	err   error
}

// WorkerPool manages a fixed number of goroutines for parallel sampling.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// SampleBatch computes one state per time in times. Output order matches
// times regardless of which worker finished first. If any sample fails, the
// failure with the lowest index is returned as a *SampleError; the other
// samples are unaffected but discarded.
func (wp *WorkerPool) SampleBatch(ctx context.Context, r *run, times []float64) ([]StateVector, error) {
	if len(times) == 0 {
		return nil, nil
	}

	workers := wp.workers
	if workers > len(times) {
		workers = len(times)
	}

	jobs := make(chan sampleJob, workers*2)
	results := make(chan sampleResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				state, err := r.sampleAt(job.index, job.time)
				select {
				case results <- sampleResult{index: job.index, state: state, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, t := range times {
			select {
			case jobs <- sampleJob{index: i, time: t}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	states := make([]StateVector, len(times))
	var (
		firstErr *SampleError
		received int
		failed   int
	)
	for res := range results {
		received++
		if res.err != nil {
			failed++
			wp.logger.Warn("sample failed",
				"index", res.index,
				"time_s", times[res.index],
				"error", res.err,
			)
			if firstErr == nil || res.index < firstErr.Index {
				firstErr = &SampleError{Index: res.index, Time: times[res.index], Err: res.err}
			}
			continue
		}
		states[res.index] = res.state
	}

	if received < len(times) {
		return nil, ctx.Err()
	}
	if firstErr != nil {
		wp.logger.Debug("sample batch failed", "failed", failed, "received", received)
		return nil, firstErr
	}
	return states, nil
}
