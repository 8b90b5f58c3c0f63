// Package worker runs background units of work detached from the request
// that scheduled them. A scheduled unit runs to completion even if the
// originating request's context is cancelled.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/homecanvas/homecanvas/pkg/logging"
)

// Pool bounds how many background units run concurrently.
type Pool struct {
	semaphore chan struct{}
	timeout   time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewPool creates a pool running at most maxConcurrency units at once.
func NewPool(maxConcurrency int) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Pool{
		semaphore: make(chan struct{}, maxConcurrency),
		timeout:   10 * time.Minute,
	}
}

// Go schedules fn as a background unit, blocking the caller until a slot is
// free so a burst of scheduling cannot pile up parked goroutines. The unit
// gets a fresh context with the pool's timeout, independent of the caller's
// cancellation. Panics are recovered and logged. Returns false if the pool
// is closed.
func (p *Pool) Go(name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.semaphore <- struct{}{}

	go func() {
		defer p.wg.Done()
		defer func() { <-p.semaphore }()

		defer func() {
			if r := recover(); r != nil {
				logging.WithComponent("worker").Error("panic in background unit",
					"unit", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Close stops accepting new units and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
