package app

import (
	"testing"
	"time"
)

func TestBackoffPlanner_Bounds(t *testing.T) {
	p := NewBackoffPlanner(DefaultBackoffPolicy())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		next := p.NextCheck(now, true)
		if next.Before(now.Add(20*time.Second)) || next.After(now.Add(40*time.Second)) {
			t.Fatalf("live next check out of bounds: %s", next.Sub(now))
		}

		next = p.NextCheck(now, false)
		if next.Before(now.Add(60*time.Second)) || next.After(now.Add(120*time.Second)) {
			t.Fatalf("offline next check out of bounds: %s", next.Sub(now))
		}
	}
}

func TestBackoffPlanner_Floor(t *testing.T) {
	p := NewBackoffPlanner(BackoffPolicy{
		LiveBase:   5 * time.Second,
		LiveJitter: 20 * time.Second,
		Floor:      10 * time.Second,
	})
	for i := 0; i < 500; i++ {
		if d := p.Delay(true); d < 10*time.Second {
			t.Fatalf("delay below floor: %s", d)
		}
	}
}

func TestBackoffPlanner_Jitters(t *testing.T) {
	p := NewBackoffPlanner(DefaultBackoffPolicy())
	seen := map[time.Duration]struct{}{}
	for i := 0; i < 50; i++ {
		seen[p.Delay(false)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected jittered delays, got %d distinct values", len(seen))
	}
}
