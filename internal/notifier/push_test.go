package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

func TestPushWebhookConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"empty", "", true},
		{"http rejected", "http://push.example.com/send", true},
		{"https accepted", "https://push.example.com/send", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := PushWebhookConfig{URL: tt.url}
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newTestPushNotifier(t *testing.T, handler http.HandlerFunc) (*PushWebhookNotifier, func()) {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	n, err := NewPushWebhookNotifier(PushWebhookConfig{URL: server.URL, Token: "secret"})
	if err != nil {
		server.Close()
		t.Fatalf("create notifier: %v", err)
	}
	n.httpClient = server.Client()
	return n, server.Close
}

func TestPushWebhookNotifierSend(t *testing.T) {
	var got PushMessage
	var auth string
	n, done := newTestPushNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})
	defer done()

	if n.Channel() != models.ChannelPush {
		t.Errorf("Channel() = %s", n.Channel())
	}
	if err := n.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.NotificationID != "n-1" || got.UserID != "user-1" || got.Priority != models.PriorityHigh {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Data["rule_id"] != "rule-1" {
		t.Errorf("metadata missing from payload: %v", got.Data)
	}
}

func TestPushWebhookNotifierHTTPError(t *testing.T) {
	n, done := newTestPushNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("gateway down"))
	})
	defer done()

	err := n.Send(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPushWebhookNotifierContextCancellation(t *testing.T) {
	n, done := newTestPushNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testNotification()); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 10); got != "aaaaaaa..." {
		t.Errorf("truncate long = %q", got)
	}
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPushConfigValidation(t *testing.T) {
	if _, err := NewKafkaPushNotifier(KafkaPushConfig{Topic: "push"}); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaPushNotifier(KafkaPushConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Error("expected error without topic")
	}
	n, err := NewKafkaPushNotifier(KafkaPushConfig{Brokers: []string{"localhost:9092"}, Topic: "push"})
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	w, ok := n.writer.(*kafka.Writer)
	if !ok || w.Topic != "push" {
		t.Errorf("unexpected writer: %#v", n.writer)
	}
}

func TestKafkaPushNotifierSend(t *testing.T) {
	w := &fakeKafkaWriter{}
	n := &KafkaPushNotifier{writer: w}
	if n.Channel() != models.ChannelPush {
		t.Errorf("Channel() = %s", n.Channel())
	}

	if err := n.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "user-1" {
		t.Errorf("key = %q, want user-1", msg.Key)
	}
	var payload PushMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Title != testNotification().Title {
		t.Errorf("title = %q", payload.Title)
	}

	w.err = errors.New("broker unavailable")
	if err := n.Send(context.Background(), testNotification()); err == nil {
		t.Error("expected write error")
	}

	if err := n.Close(); err != nil || !w.closed {
		t.Errorf("close: %v closed=%v", err, w.closed)
	}
}
