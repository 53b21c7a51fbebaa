package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, period time.Duration) (*Limiter, *clock) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(limit, period)
	l.now = c.Now
	return l, c
}

func TestLimiter_FixedWindow(t *testing.T) {
	l, c := newTestLimiter(3, time.Minute)

	for i := range 3 {
		d := l.Allow("client")
		if !d.Allowed || d.Remaining != 2-i || d.Limit != 3 {
			t.Fatalf("request %d: %+v", i, d)
		}
	}

	d := l.Allow("client")
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("fourth request = %+v, want rejected", d)
	}
	if want := c.Now().Add(time.Minute); !d.Reset.Equal(want) {
		t.Errorf("Reset = %v, want %v", d.Reset, want)
	}

	if !l.Allow("other").Allowed {
		t.Error("keys must be counted independently")
	}

	c.Advance(59 * time.Second)
	if l.Allow("client").Allowed {
		t.Error("window should still be full")
	}

	c.Advance(time.Second)
	if d := l.Allow("client"); !d.Allowed || d.Remaining != 2 {
		t.Errorf("after window = %+v", d)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, time.Minute)
	for range 100 {
		if !l.Allow("k").Allowed {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if l.Len() != 0 {
		t.Error("disabled limiter should not track keys")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, c := newTestLimiter(5, time.Minute)
	for i := range 4 {
		l.Allow(fmt.Sprintf("k%d", i))
	}

	c.Advance(30 * time.Second)
	l.Allow("fresh")

	c.Advance(30 * time.Second)
	if removed := l.Sweep(); removed != 4 {
		t.Errorf("Sweep() removed %d, want 4", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d requests, want 50", allowed)
	}
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	l := New(1, time.Millisecond)
	l.Allow("k")

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for l.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("Run never swept the expired window")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
