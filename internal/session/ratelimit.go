package session

import (
	"sync"
	"time"
)

// RateLimit caps fetches per fixed window. The window restarts at the
// first call made after it has elapsed, not on a rolling basis.
type RateLimit struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	start  time.Time
	count  int
	now    func() time.Time
}

// NewRateLimit allows max calls per window, starting now.
func NewRateLimit(max int, window time.Duration, now func() time.Time) *RateLimit {
	if now == nil {
		now = time.Now
	}
	return &RateLimit{
		window: window,
		max:    max,
		start:  now(),
		now:    now,
	}
}

// Allow resets the window if it has expired, then reports whether another
// call fits. A permitted call is counted.
func (r *RateLimit) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetIfExpired()
	if r.count >= r.max {
		return false
	}
	r.count++
	return true
}

// Remaining reports how many calls the current window still permits.
func (r *RateLimit) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetIfExpired()
	return max(r.max-r.count, 0)
}

// ResetsIn reports the time left until the window restarts.
func (r *RateLimit) ResetsIn() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := r.window - r.now().Sub(r.start)
	return max(left, 0)
}

func (r *RateLimit) resetIfExpired() {
	now := r.now()
	if now.Sub(r.start) > r.window {
		r.start = now
		r.count = 0
	}
}
