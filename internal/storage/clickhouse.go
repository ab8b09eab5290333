package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

const backendClickHouse = "clickhouse"

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string
	Database  string
	Username  string
	Password  string

	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the table TTL. Records older than this are dropped
	// by ClickHouse merges.
	RetentionDays int
}

func (c *ClickHouseConfig) withDefaults() *ClickHouseConfig {
	out := *c
	if out.MaxOpenConns == 0 {
		out.MaxOpenConns = 5
	}
	if out.MaxIdleConns == 0 {
		out.MaxIdleConns = out.MaxOpenConns
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.RetentionDays == 0 {
		out.RetentionDays = 365
	}
	return &out
}

// ClickHouseRecords is a record backend on a ClickHouse MergeTree table,
// ordered by pet and time so window reads are range scans.
type ClickHouseRecords struct {
	config *ClickHouseConfig
	conn   driver.Conn
	log    zerolog.Logger
}

// NewClickHouseRecords creates a ClickHouse record store. Call Open before use.
func NewClickHouseRecords(config *ClickHouseConfig) *ClickHouseRecords {
	return &ClickHouseRecords{config: config.withDefaults(), log: logger.WithComponent("clickhouse")}
}

// Open connects over the native protocol and verifies the connection.
func (s *ClickHouseRecords) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}
	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.conn = conn
	s.log.Info().Strs("addresses", s.config.Addresses).Str("database", s.config.Database).Msg("clickhouse connected")
	return nil
}

// Close closes the connection pool.
func (s *ClickHouseRecords) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Migrate creates the records table if it does not exist.
func (s *ClickHouseRecords) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS records (
			id String,
			pet_id String,
			timestamp DateTime64(3, 'UTC'),
			shape_code UInt8,
			health_status LowCardinality(String),
			confidence Float64
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (pet_id, timestamp)
		TTL toDate(timestamp) + INTERVAL %d DAY DELETE
	`, s.config.RetentionDays)

	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Ping checks the connection health.
func (s *ClickHouseRecords) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// InsertBatch validates records and sends them as one native batch.
func (s *ClickHouseRecords) InsertBatch(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO records (id, pet_id, timestamp, shape_code, health_status, confidence)")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer batch.Abort()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		err := batch.Append(rec.ID, rec.PetID, rec.Timestamp.UTC(), uint8(rec.ShapeCode),
			string(rec.HealthStatus), rec.Confidence)
		if err != nil {
			return fmt.Errorf("append record %s: %w", rec.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		metrics.StorageErrors.WithLabelValues("insert_records", backendClickHouse).Inc()
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Insert inserts a single record.
func (s *ClickHouseRecords) Insert(ctx context.Context, record *models.Record) error {
	return s.InsertBatch(ctx, []*models.Record{record})
}

// Fetch returns the pet's records with start <= timestamp < end, oldest
// first. A zero end leaves the range open.
func (s *ClickHouseRecords) Fetch(ctx context.Context, petID string, start, end time.Time) ([]models.Record, error) {
	started := time.Now()
	defer func() {
		metrics.StorageQueryDuration.WithLabelValues("fetch_records", backendClickHouse).Observe(time.Since(started).Seconds())
	}()

	query, args := recordRangeQuery(dialectQuestion, "id", "timestamp", petID, start.UTC(), end.UTC(), !end.IsZero())
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("fetch_records", backendClickHouse).Inc()
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			rec    models.Record
			shape  uint8
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.PetID, &rec.Timestamp, &shape, &status, &rec.Confidence); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.ShapeCode = int(shape)
		rec.HealthStatus = models.HealthStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// DeleteBefore schedules deletion of records older than before and returns
// how many matched. ClickHouse applies the mutation asynchronously.
func (s *ClickHouseRecords) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM records WHERE timestamp < ?", before.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.conn.Exec(ctx, "ALTER TABLE records DELETE WHERE timestamp < ?", before.UTC()); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return int64(count), nil
}
