package data

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Codec errors. Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyPayload is returned when there is nothing to decode.
	ErrEmptyPayload = errors.New("data: empty payload")

	// ErrDecode is returned when a payload is not a valid record.
	ErrDecode = errors.New("data: decode failed")
)

// Encode marshals a record to JSON.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("data: encode %T: %w", v, err)
	}
	return b, nil
}

// DecodeTelemetry parses a TelemetryRecord.
func DecodeTelemetry(b []byte) (TelemetryRecord, error) {
	var r TelemetryRecord
	err := decode(b, &r)
	return r, err
}

// DecodeCommand parses a CommandRecord.
func DecodeCommand(b []byte) (CommandRecord, error) {
	var r CommandRecord
	err := decode(b, &r)
	return r, err
}

// DecodeMetrics parses a MetricsRecord.
func DecodeMetrics(b []byte) (MetricsRecord, error) {
	var r MetricsRecord
	err := decode(b, &r)
	return r, err
}

// DecodeUpstream parses an UpstreamPayload.
func DecodeUpstream(b []byte) (UpstreamPayload, error) {
	var r UpstreamPayload
	err := decode(b, &r)
	return r, err
}

func decode(b []byte, v any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %T: %w", ErrDecode, v, err)
	}
	return nil
}
