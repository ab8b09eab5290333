package notifier

import (
	"sync"
	"time"
)

const (
	defaultMaxPerWindow = 60
	defaultWindow       = time.Minute
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // deliveries allowed per window, default 60
	Window       time.Duration // default 1m
	Enabled      bool
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: defaultMaxPerWindow,
		Window:       defaultWindow,
		Enabled:      true,
	}
}

// RateLimiter caps deliveries across all channels over a sliding window.
// Send times live in a fixed ring sized to the limit, so a full ring means
// the window is exhausted until its oldest entry expires.
type RateLimiter struct {
	mu           sync.Mutex
	enabled      bool
	maxPerWindow int
	window       time.Duration

	ring  []time.Time
	head  int // oldest entry
	count int

	dropped int64
	now     func() time.Time
}

// NewRateLimiter creates a limiter, filling unset limits with defaults.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = defaultMaxPerWindow
	}
	if config.Window <= 0 {
		config.Window = defaultWindow
	}
	return &RateLimiter{
		enabled:      config.Enabled,
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		ring:         make([]time.Time, config.MaxPerWindow),
		now:          time.Now,
	}
}

// Allow consumes a slot if one is free. Entries are expired lazily here.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	for r.count > 0 && !r.ring[r.head].After(cutoff) {
		r.head = (r.head + 1) % len(r.ring)
		r.count--
	}

	if r.count == len(r.ring) {
		r.dropped++
		return false
	}
	r.ring[(r.head+r.count)%len(r.ring)] = now
	r.count++
	return true
}

// Release gives back the newest slot after a failed delivery.
func (r *RateLimiter) Release() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	if r.count > 0 {
		r.count--
	}
	r.mu.Unlock()
}

// Dropped returns how many deliveries were refused.
func (r *RateLimiter) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// RateLimitStats is a snapshot of the limiter.
type RateLimitStats struct {
	Dropped      int64         `json:"dropped"`
	CurrentCount int           `json:"current_count"`
	MaxPerWindow int           `json:"max_per_window"`
	Window       time.Duration `json:"window"`
	Enabled      bool          `json:"enabled"`
}

// Stats returns a snapshot without expiring entries.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{
		Dropped:      r.dropped,
		CurrentCount: r.count,
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// Reset empties the window and the drop counter.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.count, r.dropped = 0, 0, 0
}
