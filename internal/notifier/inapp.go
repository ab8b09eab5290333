package notifier

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// InAppNotifier stores notifications for display in the app.
type InAppNotifier struct {
	store NotificationStore
}

// NewInAppNotifier creates an in-app notifier backed by store.
func NewInAppNotifier(store NotificationStore) *InAppNotifier {
	return &InAppNotifier{store: store}
}

// Channel returns models.ChannelInApp.
func (n *InAppNotifier) Channel() models.Channel {
	return models.ChannelInApp
}

// Send persists the notification as unread.
func (n *InAppNotifier) Send(ctx context.Context, notification *models.Notification) error {
	stored := *notification
	stored.Read = false
	if err := n.store.Create(ctx, &stored); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// Close is a no-op for the in-app notifier.
func (n *InAppNotifier) Close() error {
	return nil
}
