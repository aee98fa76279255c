package platforms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenCache_SharesSingleRefresh(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Token{Value: "tok", ExpiresAt: now.Add(time.Hour)}, nil
	}, time.Minute, func() time.Time { return now })

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get(context.Background())
			if err == nil && v != "tok" {
				err = errors.New("unexpected token " + v)
			}
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("source calls: want 1, got %d", got)
	}
}

func TestTokenCache_RefreshesInsideMargin(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		calls++
		return Token{Value: "tok", ExpiresAt: now.Add(10 * time.Minute)}, nil
	}, time.Minute, func() time.Time { return now })

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(8 * time.Minute)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("token still valid, want 1 call, got %d", calls)
	}

	// 9m30 + 1m de marge >= expiration.
	now = now.Add(90 * time.Second)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("want refresh inside margin, got %d calls", calls)
	}

	cache.Invalidate()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 3 {
		t.Fatalf("want refresh after Invalidate, got %d calls", calls)
	}
}

func TestTokenCache_ErrorIsNotCached(t *testing.T) {
	fail := true
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		if fail {
			return Token{}, errors.New("nope")
		}
		return Token{Value: "ok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, time.Minute, nil)

	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	fail = false
	v, err := cache.Get(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("want ok, got %q %v", v, err)
	}
}
