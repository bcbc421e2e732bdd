package redisdb

import "errors"

// Sentinel errors for Redis operations.
var (
	// ErrDisabled indicates Redis persistence is disabled in config.
	ErrDisabled = errors.New("redisdb: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("redisdb: connection failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("redisdb: not connected")

	// ErrWriteFailed wraps a failed pipeline.
	ErrWriteFailed = errors.New("redisdb: write failed")

	// ErrNotFound is returned by Latest when no reading is cached.
	ErrNotFound = errors.New("redisdb: not found")
)
