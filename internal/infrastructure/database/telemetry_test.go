package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
	_ "github.com/nerrad567/gray-logic-gateway/migrations"
)

func openMigratedStore(t *testing.T) *database.TelemetryStore {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "gateway.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return database.NewTelemetryStore(db)
}

func TestEmbeddedMigrationsApply(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "m.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 || len(status.Pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2/0", len(status.Applied), len(status.Pending))
	}
}

func TestTelemetryStore_StoreAndRecent(t *testing.T) {
	store := openMigratedStore(t)
	ctx := context.Background()

	for _, v := range []float64{31, 32, 33} {
		rec := data.TelemetryRecord{
			Name:       "HumiditySensor",
			TypeID:     1010,
			LocationID: "constraineddevice001",
			Value:      v,
			TimeStamp:  "2026-05-01T12:00:00Z",
		}
		if err := store.Store(ctx, resource.ConstrainedSensorMsg, 1, rec); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	recent, err := store.Recent(ctx, "HumiditySensor", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].Value != 33 || recent[1].Value != 32 {
		t.Errorf("Recent() = %+v, want newest two", recent)
	}
	if recent[0].LocationID != "constraineddevice001" || recent[0].TypeID != 1010 {
		t.Errorf("Recent()[0] = %+v", recent[0])
	}

	none, err := store.Recent(ctx, "TempSensor", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("Recent(unknown) = %v, %v", none, err)
	}
}

func TestTelemetryStore_StoreResponse(t *testing.T) {
	store := openMigratedStore(t)
	ctx := context.Background()

	rec := data.CommandRecord{
		Name:       "HumidifierActuator",
		TypeID:     1010,
		Command:    data.CommandOn,
		Value:      40,
		StateData:  "ok",
		IsResponse: true,
		TimeStamp:  "2026-05-01T12:00:00Z",
	}
	if err := store.StoreResponse(ctx, resource.ConstrainedActuatorResponse, rec); err != nil {
		t.Fatalf("StoreResponse() error = %v", err)
	}

	n, err := store.ResponseCount(ctx)
	if err != nil || n != 1 {
		t.Errorf("ResponseCount() = %d, %v; want 1", n, err)
	}
}
