// Package notifier delivers alert notifications over the configured channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Notifier delivers notifications over one channel.
type Notifier interface {
	// Channel returns the channel served by the notifier.
	Channel() models.Channel
	// Send delivers a notification.
	Send(ctx context.Context, n *models.Notification) error
	// Close releases any resources.
	Close() error
}

var (
	// ErrRateLimited is returned when a notification is dropped due to rate limiting.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrChannelNotConfigured is returned for channels without a registered notifier.
	ErrChannelNotConfigured = errors.New("notification channel not configured")
)

// Dispatcher routes notifications to per-channel notifiers. It implements
// alerting.Sink.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[models.Channel]Notifier
	rateLimiter *RateLimiter
	log         zerolog.Logger
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[models.Channel]Notifier),
		rateLimiter: NewRateLimiter(config),
		log:         logger.WithComponent("dispatcher"),
	}
}

// Register adds a notifier, replacing any notifier for the same channel.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Channel()] = n
}

// Unregister removes the notifier for a channel.
func (d *Dispatcher) Unregister(channel models.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, channel)
}

// Get returns the notifier for a channel.
func (d *Dispatcher) Get(channel models.Channel) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[channel]
	return n, ok
}

// Deliver sends n over channel. It returns ErrChannelNotConfigured when no
// notifier serves the channel and ErrRateLimited when the global window is
// exhausted. A failed send gives its rate limit token back.
func (d *Dispatcher) Deliver(ctx context.Context, channel models.Channel, n *models.Notification) error {
	notifier, ok := d.Get(channel)
	if !ok {
		metrics.DeliveriesTotal.WithLabelValues(string(channel), "not_configured").Inc()
		return fmt.Errorf("%s: %w", channel, ErrChannelNotConfigured)
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		metrics.DeliveriesTotal.WithLabelValues(string(channel), "rate_limited").Inc()
		return ErrRateLimited
	}

	if err := notifier.Send(ctx, n); err != nil {
		if d.rateLimiter != nil {
			d.rateLimiter.Release()
		}
		metrics.DeliveriesTotal.WithLabelValues(string(channel), "error").Inc()
		d.log.Warn().Err(err).
			Str("channel", string(channel)).
			Str("user_id", n.UserID).
			Str("notification_id", n.ID).
			Msg("notification delivery failed")
		return fmt.Errorf("%s: %w", channel, err)
	}

	metrics.DeliveriesTotal.WithLabelValues(string(channel), "success").Inc()
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for channel, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		}
	}
	d.notifiers = make(map[models.Channel]Notifier)

	return errors.Join(errs...)
}
