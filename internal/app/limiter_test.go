package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDynamicLimiter_AcquireRelease(t *testing.T) {
	l := NewDynamicLimiter(1)

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire should block")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("second acquire should have proceeded")
	}
	l.Release()
}

func TestDynamicLimiter_SetLimitWakesWaiters(t *testing.T) {
	l := NewDynamicLimiter(1)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("acquire should block")
	case <-time.After(50 * time.Millisecond):
	}

	l.SetLimit(2)
	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("waiter should have been woken by SetLimit")
	}
	l.Release()
	l.Release()
}

func TestDynamicLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewDynamicLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Acquire(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	l.Release()
}

func TestDynamicLimiter_GoBoundsConcurrency(t *testing.T) {
	l := NewDynamicLimiter(3)
	ctx := context.Background()

	var wg sync.WaitGroup
	var current, peak int32
	for i := 0; i < 20; i++ {
		err := l.Go(ctx, &wg, func() {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
		})
		if err != nil {
			t.Fatalf("Go: %v", err)
		}
	}
	wg.Wait()

	if peak > 3 {
		t.Fatalf("peak concurrency: want <= 3, got %d", peak)
	}
	if l.InFlight() != 0 {
		t.Fatalf("in flight after wait: want 0, got %d", l.InFlight())
	}
}
