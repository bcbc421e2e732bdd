package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// Measurement names.
const (
	measurementTelemetry = "telemetry"
	measurementResponse  = "actuator_response"
)

// Store queues one telemetry record as a point.
//
// The write is non-blocking; points are batched and sent asynchronously,
// and delivery failures reach the SetOnError callback.
//
// Returns:
//   - error: ErrNotConnected after Close
func (c *Client) Store(_ context.Context, kind resource.Kind, qos int, rec data.TelemetryRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(telemetryPoint(kind, qos, rec, time.Now()))
	return nil
}

// StoreResponse queues one actuator response as a point.
func (c *Client) StoreResponse(_ context.Context, kind resource.Kind, rec data.CommandRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(responsePoint(kind, rec, time.Now()))
	return nil
}

// telemetryPoint builds the point for a reading, timestamped with the
// reading's own time when it parses.
func telemetryPoint(kind resource.Kind, qos int, rec data.TelemetryRecord, now time.Time) *write.Point {
	return write.NewPoint(
		measurementTelemetry,
		map[string]string{
			"name":     rec.Name,
			"location": rec.LocationID,
			"resource": kind.Topic(),
		},
		map[string]interface{}{
			"value":       rec.Value,
			"type_id":     rec.TypeID,
			"qos":         qos,
			"status_code": rec.StatusCode,
			"has_error":   rec.HasError,
		},
		data.TimeOr(rec.TimeStamp, now),
	)
}

func responsePoint(kind resource.Kind, rec data.CommandRecord, now time.Time) *write.Point {
	return write.NewPoint(
		measurementResponse,
		map[string]string{
			"name":     rec.Name,
			"location": rec.LocationID,
			"resource": kind.Topic(),
		},
		map[string]interface{}{
			"command":   int(rec.Command),
			"value":     rec.Value,
			"type_id":   rec.TypeID,
			"has_error": rec.HasError,
		},
		data.TimeOr(rec.TimeStamp, now),
	)
}
