// Package workerpool implements the bounded worker pool backing the batch
// job engine. sourcegraph/conc/pool bounds concurrent goroutines but blocks
// the submitter once that bound is reached; the batch job engine instead
// needs fail-fast rejection when its queue is full, so Pool layers a
// buffered-channel admission gate of its own in front of a conc pool.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ErrQueueFull is returned by Submit when the bounded queue has no free slot.
// The caller never blocks waiting for one — this is the fail-fast rejection
// the batch job engine's "executor queue full" path depends on.
var ErrQueueFull = errors.New("worker pool queue is full")

// Pool runs submitted tasks on a bounded number of goroutines, queuing up to
// queueCapacity pending admissions before rejecting new work outright.
type Pool struct {
	admission chan struct{}
	inner     *pool.Pool
	wg        sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

// New builds a Pool. corePoolSize/maxPoolSize configure the conc pool's
// concurrency ceiling (the conc pool has no notion of "core" vs "max"; the
// larger of the two bounds the number of goroutines actually running).
// queueCapacity bounds how many tasks may be admitted ahead of execution
// before Submit starts returning ErrQueueFull.
func New(corePoolSize, maxPoolSize, queueCapacity int) *Pool {
	maxGoroutines := maxPoolSize
	if corePoolSize > maxGoroutines {
		maxGoroutines = corePoolSize
	}
	if maxGoroutines < 1 {
		maxGoroutines = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}

	return &Pool{
		admission: make(chan struct{}, queueCapacity),
		inner:     pool.New().WithMaxGoroutines(maxGoroutines),
	}
}

// Submit admits task for execution, returning ErrQueueFull immediately
// rather than blocking when the queue is at capacity — the caller is
// expected to react by failing the enclosing job, not retrying internally.
func (p *Pool) Submit(task func(ctx context.Context)) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return ErrQueueFull
	}
	p.mu.Unlock()

	select {
	case p.admission <- struct{}{}:
	default:
		return ErrQueueFull
	}

	p.wg.Add(1)
	p.inner.Go(func() {
		defer p.wg.Done()
		defer func() { <-p.admission }()
		task(context.Background())
	})
	return nil
}

// Shutdown stops accepting new tasks and waits up to terminationSeconds for
// in-flight tasks to finish. It returns false if the deadline elapsed first.
func (p *Pool) Shutdown(terminationSeconds int) bool {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.inner.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(time.Duration(terminationSeconds) * time.Second):
		return false
	}
}
