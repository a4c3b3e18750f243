package utils

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool[J, R any] struct {
	NumWorkers int
	JobQueue   chan J
	Results    chan R
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

// NewWorkerPool creates a new worker pool with specified number of workers
func NewWorkerPool[J, R any](numWorkers int, jobBufferSize int, resultBufferSize int) *WorkerPool[J, R] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &WorkerPool[J, R]{
		NumWorkers: numWorkers,
		JobQueue:   make(chan J, jobBufferSize),
		Results:    make(chan R, resultBufferSize),
	}
}

// StartWorkers starts the worker goroutines with the given work function
func (wp *WorkerPool[J, R]) StartWorkers(workFunc func(J) R) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}

	wp.started = true
	wp.wg.Add(wp.NumWorkers)

	for i := 0; i < wp.NumWorkers; i++ {
		go wp.worker(workFunc)
	}
}

func (wp *WorkerPool[J, R]) worker(workFunc func(J) R) {
	defer wp.wg.Done()

	for job := range wp.JobQueue {
		wp.Results <- workFunc(job)
	}
}

// SubmitJob adds a job to the job queue
func (wp *WorkerPool[J, R]) SubmitJob(job J) {
	wp.JobQueue <- job
}

// Wait closes the job queue and blocks until every worker returned.
func (wp *WorkerPool[J, R]) Wait() {
	close(wp.JobQueue)
	wp.wg.Wait()
	close(wp.Results)
}

// ProgressTracker tracks progress of concurrent operations
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
	logger    *log.Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int64, name string, logger *log.Logger) *ProgressTracker {
	if logger == nil {
		logger = log.Default()
	}
	return &ProgressTracker{
		Total:     total,
		StartTime: time.Now(),
		Name:      name,
		logger:    logger,
	}
}

// Increment increments the processed count atomically
func (pt *ProgressTracker) Increment() {
	processed := atomic.AddInt64(&pt.Processed, 1)

	// Report every 100 items or at completion
	if processed%100 == 0 || processed == pt.Total {
		elapsed := time.Since(pt.StartTime)
		rate := float64(processed) / elapsed.Seconds()
		percentage := float64(processed) / float64(pt.Total) * 100

		pt.logger.Debug(pt.Name, "processed", processed, "total", pt.Total,
			"percent", percentage, "rate", rate)
	}
}

// GetProgress returns the current progress
func (pt *ProgressTracker) GetProgress() (int64, int64, float64) {
	processed := atomic.LoadInt64(&pt.Processed)
	percentage := float64(processed) / float64(pt.Total) * 100
	return processed, pt.Total, percentage
}

// ParallelProcessor provides utilities for parallel processing
type ParallelProcessor struct {
	NumWorkers int
	Logger     *log.Logger
}

// NewParallelProcessor creates a new parallel processor
func NewParallelProcessor(numWorkers int, logger *log.Logger) *ParallelProcessor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ParallelProcessor{
		NumWorkers: numWorkers,
		Logger:     logger,
	}
}

type indexedJob[J any] struct {
	item  J
	index int
}

type indexedResult[R any] struct {
	result R
	index  int
}

// ProcessBatch runs workFunc over items in parallel and returns the
// results in input order. Jobs still queued when ctx is cancelled are
// skipped and ctx.Err() is returned with the partial results.
func ProcessBatch[J, R any](ctx context.Context, pp *ParallelProcessor, items []J,
	workFunc func(context.Context, J) R,
	progressName string) ([]R, error) {

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	tracker := NewProgressTracker(int64(len(items)), progressName, pp.Logger)

	wp := NewWorkerPool[indexedJob[J], indexedResult[R]](pp.NumWorkers, len(items), len(items))

	wp.StartWorkers(func(job indexedJob[J]) indexedResult[R] {
		var zero R
		if ctx.Err() != nil {
			return indexedResult[R]{result: zero, index: job.index}
		}
		result := workFunc(ctx, job.item)
		tracker.Increment()
		return indexedResult[R]{result: result, index: job.index}
	})

	for i, item := range items {
		wp.SubmitJob(indexedJob[J]{item: item, index: i})
	}

	// We expect exactly len(items) results
	for i := 0; i < len(items); i++ {
		r := <-wp.Results
		results[r.index] = r.result
	}

	wp.Wait()

	processed, total, pct := tracker.GetProgress()
	pp.Logger.Debug(progressName+" complete", "processed", processed, "total", total, "percent", pct)
	return results, ctx.Err()
}
