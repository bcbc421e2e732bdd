package hub

import "errors"

// Sentinel errors for routing operations.
var (
	// ErrDecode wraps a payload that could not be decoded for its kind.
	ErrDecode = errors.New("hub: decode failed")

	// ErrNoDeviceConnector is returned when a command cannot be routed
	// because the device-facing connector is disabled.
	ErrNoDeviceConnector = errors.New("hub: device connector not configured")

	// ErrCommandFailed wraps a failed publish of an actuator command.
	ErrCommandFailed = errors.New("hub: command publish failed")

	// ErrForwardFailed wraps a failed upstream send.
	ErrForwardFailed = errors.New("hub: cloud forward failed")
)
