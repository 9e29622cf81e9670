package fetch

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
	HeaderRetryAfter = "Retry-After"

	// MaxPause bounds how long a Retry-After header may stall requests.
	MaxPause = 5 * time.Minute
)

// RateLimiter combines proactive throttling with the upstream's
// Retry-After hints.
type RateLimiter struct {
	mu         sync.Mutex
	bucket     *rate.Limiter
	pauseUntil time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests with the
// given burst. A non-positive rate disables throttling.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(limit, burst),
		now:    time.Now,
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	pause := r.pauseUntil.Sub(r.now())
	r.mu.Unlock()

	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.bucket.Wait(ctx)
}

// Observe records throttling hints from a response.
// 429 and 503 responses with a Retry-After header pause later requests.
func (r *RateLimiter) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	wait, ok := parseRetryAfter(resp.Header.Get(HeaderRetryAfter), now)
	if !ok {
		return
	}
	if wait > MaxPause {
		wait = MaxPause
	}
	if until := now.Add(wait); until.After(r.pauseUntil) {
		r.pauseUntil = until
	}
}

// PausedUntil returns when requests resume after a Retry-After hint.
func (r *RateLimiter) PausedUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseUntil
}

func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return at.Sub(now), true
	}
	return 0, false
}
