package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// pragmas are applied to every connection through the DSN.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	users         *sqliteUserRepo
	pets          *sqlitePetRepo
	records       *sqliteRecordRepo
	rules         *sqliteRuleRepo
	history       *sqliteTriggerHistoryRepo
	notifications *sqliteNotificationRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	if s.path == "" {
		return fmt.Errorf("database path is required")
	}

	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	dsn := fmt.Sprintf("file:%s?%s", s.path, q.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db

	s.users = &sqliteUserRepo{db: db}
	s.pets = &sqlitePetRepo{db: db}
	s.records = &sqliteRecordRepo{db: db}
	s.rules = &sqliteRuleRepo{db: db}
	s.history = &sqliteTriggerHistoryRepo{db: db}
	s.notifications = &sqliteNotificationRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Ping checks the connection health.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository {
	return s.users
}

// Pets returns the pet repository.
func (s *SQLiteStorage) Pets() PetRepository {
	return s.pets
}

// Records returns the record repository.
func (s *SQLiteStorage) Records() RecordRepository {
	return s.records
}

// Rules returns the alert rule repository.
func (s *SQLiteStorage) Rules() RuleRepository {
	return s.rules
}

// TriggerHistory returns the trigger history repository.
func (s *SQLiteStorage) TriggerHistory() TriggerHistoryRepository {
	return s.history
}

// Notifications returns the in-app notification repository.
func (s *SQLiteStorage) Notifications() NotificationRepository {
	return s.notifications
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Instants used in range predicates are stored as Unix nanoseconds.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nanosPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}
