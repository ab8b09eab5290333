package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// PostgresRecords reads health event records from a PostgreSQL table
// shared with the record capture service.
type PostgresRecords struct {
	pool *pgxpool.Pool
}

// NewPostgresRecords connects to dsn and verifies the connection.
func NewPostgresRecords(ctx context.Context, dsn string) (*PostgresRecords, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRecords{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresRecords) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks the connection health.
func (s *PostgresRecords) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the records table if it doesn't exist.
func (s *PostgresRecords) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			pet_id TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			shape_code SMALLINT NOT NULL CHECK (shape_code BETWEEN 1 AND 7),
			health_status TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_records_pet_recorded ON records (pet_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Fetch returns the pet's records with start <= timestamp < end, oldest
// first. A zero end leaves the range open.
func (s *PostgresRecords) Fetch(ctx context.Context, petID string, start, end time.Time) ([]models.Record, error) {
	started := time.Now()
	defer func() {
		metrics.StorageQueryDuration.WithLabelValues("fetch_records", "postgres").Observe(time.Since(started).Seconds())
	}()

	query, args := recordRangeQuery(dialectDollar, "id", "recorded_at", petID, start, end, !end.IsZero())
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("fetch_records", "postgres").Inc()
		return nil, fmt.Errorf("query records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Record, error) {
		var rec models.Record
		var shape int16
		var status string
		if err := row.Scan(&rec.ID, &rec.PetID, &rec.Timestamp, &shape, &status, &rec.Confidence); err != nil {
			return rec, err
		}
		rec.ShapeCode = int(shape)
		rec.HealthStatus = models.HealthStatus(status)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}

// InsertBatch inserts records in a single batch.
func (s *PostgresRecords) InsertBatch(ctx context.Context, records []*models.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		batch.Queue(`
			INSERT INTO records (id, pet_id, recorded_at, shape_code, health_status, confidence)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.ID, rec.PetID, rec.Timestamp, int16(rec.ShapeCode), string(rec.HealthStatus), rec.Confidence)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return nil
}
