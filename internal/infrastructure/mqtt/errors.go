package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrAlreadyConnected is returned by Connect when the client is already connected.
	ErrAlreadyConnected = errors.New("mqtt: client already connected")

	// ErrConnectInProgress is returned by Connect while another Connect is running.
	ErrConnectInProgress = errors.New("mqtt: connect already in progress")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidResource is returned when an unset or unknown resource is given.
	ErrInvalidResource = errors.New("mqtt: resource not set")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrEmptyPayload is returned when publishing an empty payload.
	ErrEmptyPayload = errors.New("mqtt: payload cannot be empty")
)
