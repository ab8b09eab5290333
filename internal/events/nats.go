// Package events publishes fired alert triggers to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "pawwatch.triggers"

// TriggerEvent is the message published for each fired trigger.
type TriggerEvent struct {
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	UserID      string    `json:"user_id"`
	PetID       string    `json:"pet_id"`
	AnomalyType string    `json:"anomaly_type"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	Delivered   int       `json:"delivered"`
	HistoryID   string    `json:"history_id"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// NewTriggerEvent flattens a trigger result into an event.
func NewTriggerEvent(r *alerting.TriggerResult) TriggerEvent {
	return TriggerEvent{
		RuleID:      r.RuleID,
		RuleName:    r.RuleName,
		UserID:      r.Subject.UserID,
		PetID:       r.Subject.PetID,
		AnomalyType: string(r.Finding.Type),
		Severity:    string(r.Finding.Severity),
		Confidence:  r.Finding.Confidence,
		Description: r.Finding.Description,
		Delivered:   r.Delivery.Delivered(),
		HistoryID:   r.HistoryID,
		TriggeredAt: r.TriggeredAt,
	}
}

// conn is the subset of *nats.Conn used by the publisher.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
	IsConnected() bool
}

// NATSPublisher publishes trigger events as JSON to "<prefix>.<anomaly_type>".
type NATSPublisher struct {
	conn   conn
	prefix string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("pawwatch"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(nc, prefix), nil
}

func newPublisher(c conn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: c, prefix: prefix}
}

// Subject returns the subject used for an anomaly type.
func (p *NATSPublisher) Subject(anomalyType string) string {
	return p.prefix + "." + anomalyType
}

// PublishTrigger publishes the trigger. It implements alerting.EventPublisher.
func (p *NATSPublisher) PublishTrigger(ctx context.Context, result *alerting.TriggerResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := NewTriggerEvent(result)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trigger event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.AnomalyType), data); err != nil {
		return fmt.Errorf("publish trigger event: %w", err)
	}
	return nil
}

// Healthy reports an error while the connection is down. The client
// reconnects on its own.
func (p *NATSPublisher) Healthy() error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
}
