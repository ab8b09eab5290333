//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Integration tests require running ClickHouse.
// Run with: go test -tags=integration ./internal/storage/...

func setupClickHouseTest(t *testing.T) (*ClickHouseRecords, func()) {
	t.Helper()

	config := &ClickHouseConfig{
		Addresses:     []string{"localhost:9000"},
		Database:      "pawwatch_test",
		Username:      "default",
		Password:      "",
		MaxOpenConns:  2,
		MaxIdleConns:  2,
		DialTimeout:   5 * time.Second,
		Compression:   true,
		RetentionDays: 30,
	}

	store := NewClickHouseRecords(config)
	if err := store.Open(); err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		// Truncate test table
		store.conn.Exec(context.Background(), "TRUNCATE TABLE records")
		store.Close()
	}

	return store, cleanup
}

func TestClickHouseRecords_InsertFetch_Integration(t *testing.T) {
	store, cleanup := setupClickHouseTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	records := []*models.Record{
		{PetID: "pet-1", Timestamp: now.Add(-2 * time.Hour), ShapeCode: 4, HealthStatus: models.HealthHealthy, Confidence: 90},
		{PetID: "pet-1", Timestamp: now.Add(-time.Hour), ShapeCode: 6, HealthStatus: models.HealthConcerning, Confidence: 80},
		{PetID: "pet-2", Timestamp: now, ShapeCode: 3, HealthStatus: models.HealthWarning},
	}

	if err := store.InsertBatch(ctx, records); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	got, err := store.Fetch(ctx, "pet-1", now.Add(-3*time.Hour), now)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ShapeCode != 4 || got[1].HealthStatus != models.HealthConcerning {
		t.Errorf("unexpected order or values: %+v", got)
	}

	// End is exclusive
	got, _ = store.Fetch(ctx, "pet-1", now.Add(-3*time.Hour), now.Add(-time.Hour))
	if len(got) != 1 {
		t.Errorf("expected 1 record before end, got %d", len(got))
	}
}

func TestClickHouseRecords_DeleteBefore_Integration(t *testing.T) {
	store, cleanup := setupClickHouseTest(t)
	defer cleanup()

	ctx := context.Background()

	// Insert old data
	oldTime := time.Now().Add(-48 * time.Hour)
	records := []*models.Record{
		{PetID: "pet-1", Timestamp: oldTime, ShapeCode: 4, HealthStatus: models.HealthHealthy},
		{PetID: "pet-1", Timestamp: time.Now(), ShapeCode: 4, HealthStatus: models.HealthHealthy},
	}
	if err := store.InsertBatch(ctx, records); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	// Delete old records
	deleted, err := store.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}
