// Package data defines the records that travel through the gateway and the
// codec that converts them to and from their JSON wire form.
package data

import (
	"time"
)

// Command is an actuator command code.
type Command int

// Actuator command codes. CommandInvalid marks a wire value outside the
// supported set; it is never sent to a device.
const (
	CommandInvalid Command = -1
	CommandOff     Command = 0
	CommandOn      Command = 1
)

// ProvisioningValue is the placeholder value published to create a topic
// upstream. Receivers ignore it.
const ProvisioningValue = -1

// ParseCommand maps a numeric wire code to a Command.
func ParseCommand(code int) Command {
	switch Command(code) {
	case CommandOn, CommandOff:
		return Command(code)
	default:
		return CommandInvalid
	}
}

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c {
	case CommandOn:
		return "ON"
	case CommandOff:
		return "OFF"
	default:
		return "INVALID"
	}
}

// TelemetryRecord is one sensor reading.
type TelemetryRecord struct {
	Name       string  `json:"name"`
	TypeID     int     `json:"typeID"`
	LocationID string  `json:"locationID"`
	Value      float64 `json:"value"`
	TimeStamp  string  `json:"timeStamp"`
	StatusCode int     `json:"statusCode"`
	HasError   bool    `json:"hasError"`
	Payload    string  `json:"payload,omitempty"`
}

// CommandRecord is an actuator command, or a device's response to one when
// IsResponse is set.
type CommandRecord struct {
	Name       string  `json:"name"`
	TypeID     int     `json:"typeID"`
	LocationID string  `json:"locationID"`
	Command    Command `json:"command"`
	Value      float64 `json:"value"`
	StateData  string  `json:"stateData"`
	IsResponse bool    `json:"isResponse"`
	TimeStamp  string  `json:"timeStamp"`
	StatusCode int     `json:"statusCode"`
	HasError   bool    `json:"hasError"`
}

// MetricsRecord is a snapshot of host utilisation, in percent.
type MetricsRecord struct {
	Name       string  `json:"name"`
	LocationID string  `json:"locationID"`
	CPUUtil    float64 `json:"cpuUtil"`
	MemUtil    float64 `json:"memUtil"`
	DiskUtil   float64 `json:"diskUtil"`
	TimeStamp  string  `json:"timeStamp"`
	StatusCode int     `json:"statusCode"`
	HasError   bool    `json:"hasError"`
}

// UpstreamPayload is the reduced record sent to the cloud. Device and
// variable context travel in the topic, not here.
type UpstreamPayload struct {
	Name      string  `json:"name"`
	TimeStamp int64   `json:"timeStamp"`
	Value     float64 `json:"value"`
}

// Timestamp formats t as ISO-8601 with offset, the form used on the wire.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp parses an ISO-8601 timestamp with offset.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// TimeOr parses s and falls back to fallback when s is unparsable.
func TimeOr(s string, fallback time.Time) time.Time {
	t, err := ParseTimestamp(s)
	if err != nil {
		return fallback
	}
	return t
}

// Upstream reduces a telemetry record to its upstream form.
func (r TelemetryRecord) Upstream(now time.Time) UpstreamPayload {
	return UpstreamPayload{
		Name:      r.Name,
		TimeStamp: TimeOr(r.TimeStamp, now).UnixMilli(),
		Value:     r.Value,
	}
}

// Split fans a metrics snapshot out into one telemetry record per upstream
// variable: cpu first, then memory.
func (m MetricsRecord) Split() (cpu, mem TelemetryRecord) {
	base := TelemetryRecord{
		LocationID: m.LocationID,
		TimeStamp:  m.TimeStamp,
		StatusCode: m.StatusCode,
		HasError:   m.HasError,
	}
	cpu, mem = base, base
	cpu.Name, cpu.Value = MetricCPU, m.CPUUtil
	mem.Name, mem.Value = MetricMemory, m.MemUtil
	return cpu, mem
}

// Upstream item names for metrics fan-out.
const (
	MetricCPU    = "DeviceCpuUtil"
	MetricMemory = "DeviceMemUtil"
)
