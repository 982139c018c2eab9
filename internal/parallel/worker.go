// Package parallel splits row-wise work over a fixed pool of goroutines.
//
// Work is expressed as contiguous row spans. Results come back in span
// order, so callers that concatenate them keep the original row order.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Threshold is the row count below which callers should stay sequential.
const Threshold = 1000

// Span is the half-open row interval [Start, End).
type Span struct {
	Start, End int
}

// Len returns the number of rows in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Split cuts [0, n) into at most parts spans of near-equal length.
func Split(n, parts int) []Span {
	if n <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	parts = min(parts, n)

	spans := make([]Span, 0, parts)
	size, extra := n/parts, n%parts
	start := 0
	for i := range parts {
		end := start + size
		if i < extra {
			end++
		}
		spans = append(spans, Span{Start: start, End: end})
		start = end
	}
	return spans
}

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a pool of numWorkers goroutines; zero or less uses
// runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// ProcessIndexed runs worker over items and returns the results in item
// order. Items not started before Close leave a zero result.
func ProcessIndexed[T, R any](
	wp *WorkerPool,
	items []T,
	worker func(int, T) R,
) []R {
	if len(items) == 0 {
		return nil
	}

	itemCh := make(chan int, len(items))
	results := make([]R, len(items))

	var wg sync.WaitGroup
	for range min(wp.numWorkers, len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range itemCh {
				if wp.ctx.Err() != nil {
					return
				}
				// Each index is written by exactly one worker.
				results[i] = worker(i, items[i])
			}
		}()
	}

	for i := range items {
		itemCh <- i
	}
	close(itemCh)
	wg.Wait()

	return results
}

// Spans splits [0, n) across the pool and runs worker once per span.
func Spans[R any](wp *WorkerPool, n int, worker func(Span) R) []R {
	return ProcessIndexed(wp, Split(n, wp.numWorkers), func(_ int, s Span) R {
		return worker(s)
	})
}

// Close shuts down the worker pool
func (wp *WorkerPool) Close() {
	wp.cancel()
}
