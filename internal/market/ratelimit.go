package market

import (
	"context"
	"sync"
	"time"
)

// rateLimiter enforces a cap on requests per rolling 60-second window.
// When the cap is reached, Wait blocks the caller until the oldest request
// ages out of the window or the context is cancelled.
type rateLimiter struct {
	mu         sync.Mutex
	perMinute  int
	window     time.Duration
	timestamps []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		window:    time.Minute,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until a request slot is available, then records the request.
func (r *rateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.now()
		r.prune(now)
		if len(r.timestamps) < r.perMinute {
			r.timestamps = append(r.timestamps, now)
			r.mu.Unlock()
			return nil
		}
		// Window is full: wait until the oldest entry expires.
		wait := r.window - now.Sub(r.timestamps[0])
		r.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Available reports whether a request would proceed without blocking.
func (r *rateLimiter) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.timestamps) < r.perMinute
}

// prune drops timestamps older than the window. Caller holds the lock.
func (r *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.timestamps) && r.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.timestamps = r.timestamps[i:]
	}
}

// backoff tracks consecutive provider failures and holds callers off the
// live endpoint while a cooldown is in effect. The delay doubles on each
// failure up to max, and resets to base after one success.
type backoff struct {
	mu     sync.Mutex
	base   time.Duration
	max    time.Duration
	factor float64

	delay time.Duration
	until time.Time
}

func newBackoff(base, max time.Duration, factor float64) *backoff {
	return &backoff{base: base, max: max, factor: factor, delay: base}
}

// Blocked reports whether the cooldown from previous failures is still active.
func (b *backoff) Blocked(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.until)
}

// Failure extends the cooldown exponentially.
func (b *backoff) Failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.until = now.Add(b.delay)
	next := time.Duration(float64(b.delay) * b.factor)
	if next > b.max {
		next = b.max
	}
	b.delay = next
}

// Success clears the cooldown and resets the delay to its base value.
func (b *backoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = b.base
	b.until = time.Time{}
}
