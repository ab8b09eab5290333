package notifier

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(RateLimitConfig{MaxPerWindow: max, Window: window, Enabled: true})
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiterBasic(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Second)

	// First 3 should be allowed
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	// 4th should be denied
	if rl.Allow() {
		t.Error("4th request should be denied")
	}

	if dropped := rl.Dropped(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl, clock := newTestLimiter(2, time.Minute)

	rl.Allow()
	clock.Advance(30 * time.Second)
	rl.Allow()

	if rl.Allow() {
		t.Error("should be denied while both sends are in the window")
	}

	// First send leaves the window
	clock.Advance(30 * time.Second)
	if !rl.Allow() {
		t.Error("should be allowed once the oldest send expires")
	}
	if rl.Allow() {
		t.Error("second send is still in the window")
	}

	clock.Advance(time.Minute)
	if stats := rl.Stats(); stats.CurrentCount != 2 {
		t.Errorf("eviction is lazy, CurrentCount = %d, want 2", stats.CurrentCount)
	}
	if !rl.Allow() {
		t.Error("should be allowed after the window passes")
	}
	if stats := rl.Stats(); stats.CurrentCount != 1 {
		t.Errorf("CurrentCount = %d, want 1", stats.CurrentCount)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Second, Enabled: false})

	for i := 0; i < 100; i++ {
		if !rl.Allow() {
			t.Errorf("request %d should be allowed when disabled", i+1)
		}
	}
	rl.Release()

	if dropped := rl.Dropped(); dropped != 0 {
		t.Errorf("dropped = %d, want 0 when disabled", dropped)
	}
}

func TestRateLimiterRelease(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)

	rl.Allow()
	rl.Allow()
	if rl.Allow() {
		t.Fatal("limit should be reached")
	}

	rl.Release()
	if !rl.Allow() {
		t.Error("released token should be reusable")
	}

	// Release on an empty limiter is a no-op
	empty, _ := newTestLimiter(1, time.Minute)
	empty.Release()
	if !empty.Allow() {
		t.Error("empty limiter should allow")
	}
}

func TestRateLimiterResetAndStats(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	rl.Allow()
	rl.Allow()

	stats := rl.Stats()
	if stats.Dropped != 1 || stats.CurrentCount != 1 || stats.MaxPerWindow != 1 || !stats.Enabled {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rl.Reset()
	stats = rl.Stats()
	if stats.Dropped != 0 || stats.CurrentCount != 0 {
		t.Errorf("stats after reset: %+v", stats)
	}
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true})
	if rl.maxPerWindow != 60 {
		t.Errorf("maxPerWindow = %d, want 60", rl.maxPerWindow)
	}
	if rl.window != time.Minute {
		t.Errorf("window = %v, want 1m", rl.window)
	}

	def := DefaultRateLimitConfig()
	if def.MaxPerWindow != 60 || def.Window != time.Minute || !def.Enabled {
		t.Errorf("unexpected default config: %+v", def)
	}
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
	if rl.Dropped() != 50 {
		t.Errorf("dropped = %d, want 50", rl.Dropped())
	}
}
