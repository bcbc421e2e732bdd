// Package influxdb writes routed telemetry and actuator responses to an
// InfluxDB v2 bucket.
//
// Readings become points in the "telemetry" measurement and responses in
// "actuator_response". Both are tagged with name, location and resource
// topic and timestamped with the record's own time, falling back to the
// write time when it does not parse.
//
// Writes are batched and non-blocking. Store only fails once the client is
// closed; delivery errors are reported through SetOnError.
package influxdb
