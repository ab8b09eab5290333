package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/good-yellow-bee/pawwatch/internal/models"
	buildinfo "github.com/good-yellow-bee/pawwatch/pkg/config"
)

// PushMessage is the payload handed to push transports.
type PushMessage struct {
	NotificationID string                      `json:"notification_id"`
	UserID         string                      `json:"user_id"`
	PetID          string                      `json:"pet_id,omitempty"`
	Title          string                      `json:"title"`
	Body           string                      `json:"body"`
	Category       models.NotificationCategory `json:"category"`
	Priority       models.NotificationPriority `json:"priority"`
	Data           map[string]any              `json:"data,omitempty"`
	SentAt         time.Time                   `json:"sent_at"`
}

func newPushMessage(n *models.Notification, now time.Time) PushMessage {
	return PushMessage{
		NotificationID: n.ID,
		UserID:         n.UserID,
		PetID:          n.PetID,
		Title:          n.Title,
		Body:           truncate(n.Message, 240),
		Category:       n.Category,
		Priority:       n.Priority,
		Data:           n.Metadata,
		SentAt:         now.UTC(),
	}
}

// PushWebhookConfig holds push gateway configuration.
type PushWebhookConfig struct {
	URL     string        // Push gateway endpoint
	Token   string        // Bearer token (optional)
	Timeout time.Duration // Request timeout (default: 10s)
}

// Validate validates the push webhook configuration.
func (c *PushWebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// PushWebhookNotifier posts push notifications to an HTTP gateway.
type PushWebhookNotifier struct {
	config     PushWebhookConfig
	httpClient *http.Client
}

// NewPushWebhookNotifier creates a new push webhook notifier.
func NewPushWebhookNotifier(config PushWebhookConfig) (*PushWebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &PushWebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Channel returns models.ChannelPush.
func (p *PushWebhookNotifier) Channel() models.Channel {
	return models.ChannelPush
}

// Send posts the notification to the gateway.
func (p *PushWebhookNotifier) Send(ctx context.Context, n *models.Notification) error {
	jsonData, err := json.Marshal(newPushMessage(n, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push gateway error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the webhook notifier.
func (p *PushWebhookNotifier) Close() error {
	return nil
}

// KafkaPushConfig holds Kafka push transport configuration.
type KafkaPushConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration // default: 10s
}

// Validate validates the Kafka push configuration.
func (c *KafkaPushConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	return nil
}

// messageWriter is the subset of *kafka.Writer used for push delivery.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPushNotifier publishes push notifications to a Kafka topic for a
// downstream push service. Messages are keyed by user id.
type KafkaPushNotifier struct {
	writer messageWriter
}

// NewKafkaPushNotifier creates a Kafka push notifier.
func NewKafkaPushNotifier(config KafkaPushConfig) (*KafkaPushNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka push config: %w", err)
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{}, // Partition by user
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaPushNotifier{writer: writer}, nil
}

// Channel returns models.ChannelPush.
func (k *KafkaPushNotifier) Channel() models.Channel {
	return models.ChannelPush
}

// Send writes the notification to the push topic.
func (k *KafkaPushNotifier) Send(ctx context.Context, n *models.Notification) error {
	now := time.Now()
	data, err := json.Marshal(newPushMessage(n, now))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "notification_id", Value: []byte(n.ID)},
			{Key: "priority", Value: []byte(n.Priority)},
		},
		Time: now,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write push message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPushNotifier) Close() error {
	return k.writer.Close()
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
