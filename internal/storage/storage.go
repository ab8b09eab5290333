// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Users() UserRepository
	Pets() PetRepository
	Records() RecordRepository
	Rules() RuleRepository
	TriggerHistory() TriggerHistoryRepository
	Notifications() NotificationRepository
}

// UserRepository defines operations for pet owners.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// PetRepository defines operations for pets.
type PetRepository interface {
	Create(ctx context.Context, pet *models.Pet) error
	GetByID(ctx context.Context, id string) (*models.Pet, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Pet, error)
	PetsForUser(ctx context.Context, userID string) ([]*models.Pet, error)
}

// RecordReader supplies records for a pet over [start, end). A zero end is
// open-ended. It matches detector.RecordReader.
type RecordReader interface {
	Fetch(ctx context.Context, petID string, start, end time.Time) ([]models.Record, error)
}

// RecordRepository stores health event records.
type RecordRepository interface {
	RecordReader
	Insert(ctx context.Context, record *models.Record) error
	InsertBatch(ctx context.Context, records []*models.Record) error
}

// RuleRepository defines operations for alert rules, including the trigger
// bookkeeping used by the alert engine.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	Update(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.AlertRule, error)
	ListByUser(ctx context.Context, userID string) ([]*models.AlertRule, error)
	SetActive(ctx context.Context, id string, active bool) error

	ActiveRulesFor(ctx context.Context, userID, petID string) ([]*models.AlertRule, error)
	ListActive(ctx context.Context) ([]*models.AlertRule, error)
	CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	ClaimTrigger(ctx context.Context, claim *models.TriggerClaim) error
	RecordDelivery(ctx context.Context, historyID, ruleID string, delivery models.Delivery) error
}

// TriggerHistoryRepository defines read and retention operations on trigger history.
type TriggerHistoryRepository interface {
	List(ctx context.Context, limit, offset int) ([]*models.TriggerHistory, int64, error)
	ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.TriggerHistory, int64, error)
	ListByPet(ctx context.Context, petID string, limit, offset int) ([]*models.TriggerHistory, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}
