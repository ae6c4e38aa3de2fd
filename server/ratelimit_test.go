package server

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	clock := NewVirtualClock(time.Unix(1000, 0))
	rl := NewRateLimiter("test", 3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		d := rl.Allow("1.2.3.4")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if d.Remaining != 3-i-1 {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 3-i-1)
		}
	}

	// (k+1)-th call within the window: denied with zero remaining
	d := rl.Allow("1.2.3.4")
	if d.Allowed {
		t.Fatal("4th request should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", d.Remaining)
	}
	if d.ResetAtMs != time.Unix(1060, 0).UnixMilli() {
		t.Errorf("reset = %d, want window end", d.ResetAtMs)
	}

	// Other keys are unaffected
	if !rl.Allow("5.6.7.8").Allowed {
		t.Error("different key should be allowed")
	}

	// Window rolls forward
	clock.Advance(61 * time.Second)
	if !rl.Allow("1.2.3.4").Allowed {
		t.Error("request after window should be allowed")
	}
}

func TestRateLimiterRetryAfterFloor(t *testing.T) {
	clock := NewVirtualClock(time.Unix(2000, 0))
	rl := NewRateLimiter("snapshot", 1, 10*time.Second, clock)

	if !rl.Allow("snapshot:worker-7").Allowed {
		t.Fatal("first snapshot should pass")
	}

	clock.Advance(800 * time.Millisecond)
	d := rl.Allow("snapshot:worker-7")
	if d.Allowed {
		t.Fatal("second snapshot within 10s should be denied")
	}
	if d.RetryAfterSec != 9 {
		t.Errorf("Retry-After = %d, want 9", d.RetryAfterSec)
	}
}

func TestRateLimiterDeniedAttemptsDoNotExtendWindow(t *testing.T) {
	clock := NewVirtualClock(time.Unix(3000, 0))
	rl := NewRateLimiter("test", 1, 10*time.Second, clock)

	rl.Allow("k")
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		rl.Allow("k")
	}
	// 5 denied retries later the original window still ends at +10s
	clock.Advance(6 * time.Second) // t = +11s
	if !rl.Allow("k").Allowed {
		t.Error("request after original window should be allowed")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	clock := NewVirtualClock(time.Unix(4000, 0))
	rl := NewRateLimiter("test", 5, time.Second, clock)

	rl.Allow("a")
	rl.Allow("b")
	clock.Advance(2 * time.Second)
	rl.Sweep()

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets after sweep = %d, want 0", n)
	}
}

func TestSimpleCacheTTL(t *testing.T) {
	clock := NewVirtualClock(time.Unix(5000, 0))
	c := NewSimpleCache(clock)

	c.Set("gauge", 42, 60)
	if v, ok := c.Get("gauge"); !ok || v.(int) != 42 {
		t.Fatalf("Get = %v, %v; want 42, true", v, ok)
	}

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("gauge"); !ok {
		t.Error("entry should still be live at 59s")
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("gauge"); ok {
		t.Error("entry should have expired at 61s")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on access, len = %d", c.Len())
	}
}

func TestCSRFSingleUse(t *testing.T) {
	clock := NewVirtualClock(time.Unix(6000, 0))
	cs := NewCSRFStore(clock)

	token, err := cs.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars (256 bits)", len(token))
	}

	if err := cs.Consume(token); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if err := cs.Consume(token); err != ErrCSRFReused {
		t.Errorf("second consume = %v, want ErrCSRFReused", err)
	}

	if err := cs.Consume(""); err != ErrCSRFMissing {
		t.Errorf("empty token = %v, want ErrCSRFMissing", err)
	}
	if err := cs.Consume("deadbeef"); err != ErrCSRFUnknown {
		t.Errorf("unknown token = %v, want ErrCSRFUnknown", err)
	}
}

func TestCSRFExpiry(t *testing.T) {
	clock := NewVirtualClock(time.Unix(7000, 0))
	cs := NewCSRFStore(clock)

	token, _ := cs.Issue()
	clock.Advance(csrfTokenTTL + time.Second)
	if err := cs.Consume(token); err != ErrCSRFUnknown {
		t.Errorf("expired token = %v, want ErrCSRFUnknown", err)
	}

	// Sweep clears used and expired tokens
	t2, _ := cs.Issue()
	_ = cs.Consume(t2)
	cs.Sweep()
	if cs.Len() != 0 {
		t.Errorf("store after sweep = %d tokens, want 0", cs.Len())
	}
}
