// Package clickhousedb stores telemetry in ClickHouse for long-range
// analytics.
package clickhousedb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

const defaultDialTimeout = 5 * time.Second

// Sentinel errors.
var (
	ErrDisabled         = errors.New("clickhousedb: disabled in configuration")
	ErrConnectionFailed = errors.New("clickhousedb: connection failed")
	ErrNotConnected     = errors.New("clickhousedb: not connected")
	ErrWriteFailed      = errors.New("clickhousedb: write failed")
)

// conn is the subset of driver.Conn the store uses.
type conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// Client writes telemetry rows to ClickHouse.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	conn conn
	now  func() time.Time

	mu        sync.RWMutex
	connected bool
}

// Connect opens the connection, pings the server and creates the tables.
func Connect(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	dialTimeout := time.Duration(cfg.DialTimeout) * time.Second
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: dialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newClient(ctx, c)
}

func newClient(ctx context.Context, c conn) (*Client, error) {
	if err := c.Ping(ctx); err != nil {
		c.Close() //nolint:errcheck // Best-effort cleanup after failed ping
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}

	client := &Client{conn: c, now: time.Now, connected: true}
	if err := client.InitSchema(ctx); err != nil {
		c.Close() //nolint:errcheck // Best-effort cleanup
		return nil, err
	}
	return client, nil
}

// InitSchema creates the tables if they do not exist.
func (c *Client) InitSchema(ctx context.Context) error {
	for _, ddl := range AllTables() {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("clickhousedb: create table: %w", err)
		}
	}
	return nil
}

// Store inserts one telemetry row.
func (c *Client) Store(ctx context.Context, kind resource.Kind, qos int, rec data.TelemetryRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	err := c.conn.Exec(ctx, insertTelemetry,
		data.TimeOr(rec.TimeStamp, c.now()),
		kind.String(),
		uint8(qos), //nolint:gosec // QoS is 0..2
		rec.Name,
		int32(rec.TypeID), //nolint:gosec // Type IDs fit in int32
		rec.LocationID,
		rec.Value,
		int32(rec.StatusCode), //nolint:gosec // Status codes fit in int32
		rec.HasError,
	)
	if err != nil {
		return fmt.Errorf("%w: telemetry %s: %w", ErrWriteFailed, rec.Name, err)
	}
	return nil
}

// StoreResponse inserts one actuator response row.
func (c *Client) StoreResponse(ctx context.Context, kind resource.Kind, rec data.CommandRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	err := c.conn.Exec(ctx, insertResponse,
		data.TimeOr(rec.TimeStamp, c.now()),
		kind.String(),
		rec.Name,
		int32(rec.TypeID), //nolint:gosec // Type IDs fit in int32
		rec.LocationID,
		int8(rec.Command), //nolint:gosec // Command is -1..1
		rec.Value,
		rec.StateData,
		rec.HasError,
	)
	if err != nil {
		return fmt.Errorf("%w: response %s: %w", ErrWriteFailed, rec.Name, err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close closes the connection. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("clickhousedb: close: %w", err)
	}
	return nil
}
