package models

import "time"

// NotificationCategory groups notifications by anomaly family.
type NotificationCategory string

const (
	CategoryHealth    NotificationCategory = "health"
	CategoryFrequency NotificationCategory = "frequency"
	CategoryPattern   NotificationCategory = "pattern"
	CategoryGeneral   NotificationCategory = "general"
)

// NotificationPriority is the delivery priority of a notification.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is a fully formed payload handed to the notification sink.
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	PetID     string               `json:"pet_id,omitempty"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Priority  NotificationPriority `json:"priority"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	Read      bool                 `json:"read"`
	CreatedAt time.Time            `json:"created_at"`
}
