package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqliteRecordRepo struct {
	db *sql.DB
}

func (r *sqliteRecordRepo) Insert(ctx context.Context, record *models.Record) error {
	return r.InsertBatch(ctx, []*models.Record{record})
}

// InsertBatch validates and inserts records in one transaction.
func (r *sqliteRecordRepo) InsertBatch(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, pet_id, ts_ns, shape_code, health_status, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.PetID, toNanos(rec.Timestamp), rec.ShapeCode, rec.HealthStatus, rec.Confidence,
		)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Fetch returns the pet's records with start <= timestamp < end, oldest first.
// A zero end leaves the range open.
func (r *sqliteRecordRepo) Fetch(ctx context.Context, petID string, start, end time.Time) ([]models.Record, error) {
	started := time.Now()
	defer func() {
		metrics.StorageQueryDuration.WithLabelValues("fetch_records", "sqlite").Observe(time.Since(started).Seconds())
	}()

	query := `
		SELECT id, pet_id, ts_ns, shape_code, health_status, confidence
		FROM records WHERE pet_id = ? AND ts_ns >= ?
	`
	args := []any{petID, toNanos(start)}
	if !end.IsZero() {
		query += " AND ts_ns < ?"
		args = append(args, toNanos(end))
	}
	query += " ORDER BY ts_ns ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("fetch_records", "sqlite").Inc()
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.PetID, &ts, &rec.ShapeCode, &rec.HealthStatus, &rec.Confidence); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Timestamp = fromNanos(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}
