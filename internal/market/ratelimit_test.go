package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock shared by limiter tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRateLimiter_AllowsUpToCap(t *testing.T) {
	clock := newTestClock()
	limiter := newRateLimiter(3)
	limiter.now = clock.Now
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatalf("unexpected sleep of %v under the cap", d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}
	if limiter.Available() {
		t.Error("expected limiter to be saturated after 3 requests")
	}
}

func TestRateLimiter_BlocksUntilWindowRolls(t *testing.T) {
	clock := newTestClock()
	limiter := newRateLimiter(2)
	limiter.now = clock.Now

	slept := time.Duration(0)
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		// Step just past the window edge; pruning is strict.
		clock.Advance(d + time.Millisecond)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Third request must wait for the first to age out of the minute.
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slept != time.Minute {
		t.Errorf("expected a full-window wait of 1m, slept %v", slept)
	}
}

func TestRateLimiter_WindowFreesSlotsOverTime(t *testing.T) {
	clock := newTestClock()
	limiter := newRateLimiter(2)
	limiter.now = clock.Now

	ctx := context.Background()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(40 * time.Second)
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.Available() {
		t.Error("expected no slot with both requests inside the window")
	}

	// 61s after the first request it has aged out.
	clock.Advance(21 * time.Second)
	if !limiter.Available() {
		t.Error("expected a free slot after the oldest request expired")
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	clock := newTestClock()
	limiter := newRateLimiter(1)
	limiter.now = clock.Now
	limiter.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff_DoublesUpToMax(t *testing.T) {
	clock := newTestClock()
	b := newBackoff(time.Second, 4*time.Second, 2.0)

	if b.Blocked(clock.Now()) {
		t.Fatal("expected no cooldown before any failure")
	}

	// 1s, 2s, 4s, then capped at 4s.
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, want := range expected {
		b.Failure(clock.Now())
		if !b.Blocked(clock.Now()) {
			t.Fatalf("failure %d: expected cooldown to be active", i+1)
		}
		if b.Blocked(clock.Now().Add(want)) {
			t.Errorf("failure %d: expected cooldown to end after %v", i+1, want)
		}
		clock.Advance(want)
	}
}

func TestBackoff_SuccessResets(t *testing.T) {
	clock := newTestClock()
	b := newBackoff(time.Second, time.Minute, 2.0)

	b.Failure(clock.Now())
	b.Failure(clock.Now())
	b.Success()

	if b.Blocked(clock.Now()) {
		t.Error("expected success to clear the cooldown immediately")
	}

	// Next failure starts from the base delay again.
	b.Failure(clock.Now())
	if b.Blocked(clock.Now().Add(time.Second)) {
		t.Error("expected delay to reset to base after success")
	}
}
