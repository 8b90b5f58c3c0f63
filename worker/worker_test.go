package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsUnit(t *testing.T) {
	pool := NewPool(2)
	done := make(chan struct{})

	ok := pool.Go("test", func(ctx context.Context) {
		close(done)
	})
	if !ok {
		t.Fatal("Go returned false on open pool")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unit did not run")
	}
	pool.Close()
}

func TestConcurrencyBound(t *testing.T) {
	pool := NewPool(2)
	var running, peak int32
	var mu sync.Mutex
	block := make(chan struct{})

	var callers sync.WaitGroup
	for i := 0; i < 5; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			pool.Go("bounded", func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				mu.Lock()
				if n > peak {
					peak = n
				}
				mu.Unlock()
				<-block
				atomic.AddInt32(&running, -1)
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(block)
	callers.Wait()
	pool.Close()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent units, saw %d", peak)
	}
}

func TestGoBlocksUntilSlotFree(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	running := make(chan struct{})
	pool.Go("first", func(ctx context.Context) {
		close(running)
		<-release
	})
	<-running

	scheduled := make(chan struct{})
	go func() {
		pool.Go("second", func(ctx context.Context) {})
		close(scheduled)
	}()

	select {
	case <-scheduled:
		t.Fatal("Go returned while the pool was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-scheduled:
	case <-time.After(time.Second):
		t.Fatal("Go never returned after a slot freed")
	}
	pool.Close()
}

func TestPanicRecovered(t *testing.T) {
	pool := NewPool(1)
	pool.Go("panics", func(ctx context.Context) {
		panic("boom")
	})
	// Close waits; a leaked panic would fail the test process.
	pool.Close()

	if pool.Go("after close", func(ctx context.Context) {}) {
		t.Error("Go accepted work after Close")
	}
}

func TestUnitContextIndependentOfCaller(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	callerCtx, cancel := context.WithCancel(context.Background())
	cancel()

	got := make(chan error, 1)
	pool.Go("detached", func(ctx context.Context) {
		got <- ctx.Err()
	})
	_ = callerCtx

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("background context unexpectedly done: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("unit did not run")
	}
}

func TestCloseWaitsForRunning(t *testing.T) {
	pool := NewPool(1)
	var finished atomic.Bool

	pool.Go("slow", func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	pool.Close()

	if !finished.Load() {
		t.Error("Close returned before unit finished")
	}
}
