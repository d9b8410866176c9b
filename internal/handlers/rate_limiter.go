package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	// Allow reports whether key may proceed and, when it may not, how long to wait.
	Allow(key string) (bool, time.Duration)
}

// customerThrottle keeps one token bucket per customer: perWindow uploads in a burst,
// refilled evenly across the window.
type customerThrottle struct {
	limit  rate.Limit
	burst  int
	idle   time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	perKey map[string]*throttleBucket
}

type throttleBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newCustomerThrottle returns nil when either bound is non-positive, which disables
// throttling.
func newCustomerThrottle(perWindow int, window time.Duration, clock func() time.Time) rateLimiter {
	if perWindow <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &customerThrottle{
		limit:  rate.Every(window / time.Duration(perWindow)),
		burst:  perWindow,
		idle:   window,
		clock:  clock,
		perKey: make(map[string]*throttleBucket),
	}
}

func (t *customerThrottle) Allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket, ok := t.perKey[key]
	if !ok {
		t.evictIdleLocked(now)
		bucket = &throttleBucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.perKey[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, t.idle
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// evictIdleLocked drops buckets untouched for a full window; they would be full again anyway.
func (t *customerThrottle) evictIdleLocked(now time.Time) {
	for key, bucket := range t.perKey {
		if now.Sub(bucket.lastSeen) >= t.idle {
			delete(t.perKey, key)
		}
	}
}
