package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// TelemetryStore persists routed records in the telemetry and
// actuator_responses tables created by the embedded migrations.
type TelemetryStore struct {
	db  *DB
	now func() time.Time
}

// NewTelemetryStore wraps an open, migrated database.
func NewTelemetryStore(db *DB) *TelemetryStore {
	return &TelemetryStore{db: db, now: time.Now}
}

// Store inserts one telemetry record.
func (s *TelemetryStore) Store(ctx context.Context, kind resource.Kind, qos int, rec data.TelemetryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry
			(resource, qos, name, type_id, location_id, value, time_stamp, status_code, has_error, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kind.Topic(), qos, rec.Name, rec.TypeID, rec.LocationID, rec.Value,
		rec.TimeStamp, rec.StatusCode, rec.HasError, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing telemetry %s: %w", rec.Name, err)
	}
	return nil
}

// StoreResponse inserts one actuator response.
func (s *TelemetryStore) StoreResponse(ctx context.Context, kind resource.Kind, rec data.CommandRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actuator_responses
			(resource, name, type_id, location_id, command, value, state_data, time_stamp, status_code, has_error, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kind.Topic(), rec.Name, rec.TypeID, rec.LocationID, int(rec.Command), rec.Value,
		rec.StateData, rec.TimeStamp, rec.StatusCode, rec.HasError, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing response %s: %w", rec.Name, err)
	}
	return nil
}

// Recent returns up to limit telemetry records for name, newest first.
func (s *TelemetryStore) Recent(ctx context.Context, name string, limit int) ([]data.TelemetryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type_id, location_id, value, time_stamp, status_code, has_error
		FROM telemetry
		WHERE name = ?
		ORDER BY id DESC
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var out []data.TelemetryRecord
	for rows.Next() {
		var r data.TelemetryRecord
		if err := rows.Scan(&r.Name, &r.TypeID, &r.LocationID, &r.Value, &r.TimeStamp, &r.StatusCode, &r.HasError); err != nil {
			return nil, fmt.Errorf("scanning telemetry row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}
	return out, nil
}

// ResponseCount returns the number of stored actuator responses.
func (s *TelemetryStore) ResponseCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actuator_responses").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return n, nil
}
