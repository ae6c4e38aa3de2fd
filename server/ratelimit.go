package server

import (
	"sync"
	"time"
)

// RateLimitDecision is what a limiter returns for one request.
type RateLimitDecision struct {
	Allowed       bool
	Limit         int
	Remaining     int
	ResetAtMs     int64 // epoch ms when the window rolls
	RetryAfterSec int   // only meaningful when !Allowed
}

// RateLimiter is a sliding-window per-key limiter. Window bookkeeping is a
// timestamp list per key; expired entries are pruned on access and by a
// janitor sweep so idle keys do not accumulate.
type RateLimiter struct {
	name   string
	limit  int
	window time.Duration
	clock  Clock

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewRateLimiter builds a named limiter: `limit` requests per `window` per key.
func NewRateLimiter(name string, limit int, window time.Duration, clock Clock) *RateLimiter {
	if clock == nil {
		clock = SystemClock
	}
	return &RateLimiter{
		name:    name,
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key and reports the decision. Denied attempts
// are not recorded, so a client cannot extend its own penalty by retrying.
func (rl *RateLimiter) Allow(key string) RateLimitDecision {
	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	times := rl.buckets[key]
	// Prune entries that have left the window
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	decision := RateLimitDecision{Limit: rl.limit}
	if len(kept) >= rl.limit {
		rl.buckets[key] = kept
		oldest := kept[0]
		reset := oldest.Add(rl.window)
		decision.Remaining = 0
		decision.ResetAtMs = reset.UnixMilli()
		retry := int(reset.Sub(now).Seconds())
		if retry < 1 {
			retry = 1
		}
		decision.RetryAfterSec = retry
		return decision
	}

	kept = append(kept, now)
	rl.buckets[key] = kept
	decision.Allowed = true
	decision.Remaining = rl.limit - len(kept)
	decision.ResetAtMs = kept[0].Add(rl.window).UnixMilli()
	return decision
}

// Sweep drops keys whose entries have all expired. Called periodically by the
// server's janitor goroutine.
func (rl *RateLimiter) Sweep() {
	cutoff := rl.clock.Now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, times := range rl.buckets {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.buckets, key)
		}
	}
}

// Name identifies the limiter in logs.
func (rl *RateLimiter) Name() string { return rl.name }
