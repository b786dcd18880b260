package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fixed returns a limiter with an injectable clock starting at base.
func fixed(cfg Config) (*Limiter, *time.Time) {
	l := New(cfg)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_QuotaThenReject(t *testing.T) {
	l, _ := fixed(Config{MaxRequests: 3, Window: time.Minute})

	for i := range 3 {
		if d := l.Admit("a"); !d.Allowed {
			t.Fatalf("request %d rejected within quota", i+1)
		}
	}
	d := l.Admit("a")
	if d.Allowed {
		t.Fatal("request over quota was allowed")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want in (0, 1m]", d.RetryAfter)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := fixed(Config{MaxRequests: 1, Window: time.Minute})

	if d := l.Admit("a"); !d.Allowed {
		t.Fatal("first request for a rejected")
	}
	if d := l.Admit("a"); d.Allowed {
		t.Fatal("second request for a allowed")
	}
	if d := l.Admit("b"); !d.Allowed {
		t.Error("exhausting a's quota throttled b")
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	l, now := fixed(Config{MaxRequests: 1, Window: time.Minute})

	l.Admit("a")
	if d := l.Admit("a"); d.Allowed {
		t.Fatal("over-quota request allowed")
	}

	*now = now.Add(time.Minute)
	if d := l.Admit("a"); !d.Allowed {
		t.Error("request after window rollover rejected")
	}
}

func TestLimiter_RetryAfterShrinksAsWindowAges(t *testing.T) {
	l, now := fixed(Config{MaxRequests: 1, Window: time.Minute})

	l.Admit("a")
	first := l.Admit("a").RetryAfter

	*now = now.Add(40 * time.Second)
	second := l.Admit("a").RetryAfter
	if second >= first {
		t.Errorf("RetryAfter did not shrink: %v then %v", first, second)
	}
	if want := 20 * time.Second; second != want {
		t.Errorf("RetryAfter = %v, want %v", second, want)
	}
}

func TestLimiter_Observables(t *testing.T) {
	l, now := fixed(Config{MaxRequests: 4, Window: time.Minute})

	if got := l.MaxBucketUsage(); got != 0 {
		t.Errorf("MaxBucketUsage on empty limiter = %v, want 0", got)
	}
	if got := l.MinWindowRemaining(); got != 0 {
		t.Errorf("MinWindowRemaining on empty limiter = %v, want 0", got)
	}

	l.Admit("a")
	l.Admit("a")
	l.Admit("a")
	l.Admit("b")

	if got := l.MaxBucketUsage(); got != 0.75 {
		t.Errorf("MaxBucketUsage = %v, want 0.75", got)
	}

	*now = now.Add(15 * time.Second)
	if got, want := l.MinWindowRemaining(), 45*time.Second; got != want {
		t.Errorf("MinWindowRemaining = %v, want %v", got, want)
	}

	// Once every window expires the observables go back to idle values.
	*now = now.Add(time.Minute)
	if got := l.MaxBucketUsage(); got != 0 {
		t.Errorf("MaxBucketUsage after expiry = %v, want 0", got)
	}
	if got := l.MinWindowRemaining(); got != 0 {
		t.Errorf("MinWindowRemaining after expiry = %v, want 0", got)
	}
}

func TestLimiter_SweepEvictsExpiredBuckets(t *testing.T) {
	l, now := fixed(Config{MaxRequests: 1, Window: time.Minute})

	l.Admit("a")
	l.Admit("b")
	l.Admit("c")
	if got := l.activeKeys(); got != 3 {
		t.Fatalf("activeKeys = %d, want 3", got)
	}

	*now = now.Add(2 * time.Minute)
	l.Admit("d")
	if got := l.activeKeys(); got != 1 {
		t.Errorf("activeKeys after sweep = %d, want 1", got)
	}
}

func TestLimiter_ConcurrentAdmits(t *testing.T) {
	l := New(Config{MaxRequests: 50, Window: time.Minute})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("a").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly the quota (50)", allowed)
	}
}
