// Package redisdb caches the latest telemetry and a bounded reading history
// in Redis.
//
// Keys:
//
//	gateway:latest:<scope>/<resource>:<name>   JSON of the newest reading
//	gateway:history:<scope>/<resource>:<name>  LPUSH list, trimmed to HistoryLen
//	gateway:response:<name>                    JSON of the newest actuator response
package redisdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

const (
	defaultHistoryLen  = 100
	defaultPingTimeout = 5 * time.Second
	keyPrefix          = "gateway:"
)

// Client is a Redis-backed telemetry store.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	rdb        *redis.Client
	historyLen int64

	mu        sync.RWMutex
	connected bool
}

// Connect creates the Redis client and verifies it with a ping.
//
// Returns:
//   - *Client: Ready for use
//   - error: ErrDisabled, or ErrConnectionFailed if the ping fails
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best-effort cleanup after failed ping
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	historyLen := cfg.HistoryLen
	if historyLen <= 0 {
		historyLen = defaultHistoryLen
	}

	return &Client{
		rdb:        rdb,
		historyLen: int64(historyLen),
		connected:  true,
	}, nil
}

// Close releases the connection pool. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.rdb.Close()
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Store caches rec as the latest reading for its name and pushes it onto
// the history list. The qos is accepted for interface compatibility only.
func (c *Client) Store(ctx context.Context, kind resource.Kind, _ int, rec data.TelemetryRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	raw, err := data.Encode(rec)
	if err != nil {
		return err
	}

	historyKey := HistoryKey(kind, rec.Name)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, LatestKey(kind, rec.Name), raw, 0)
	pipe.LPush(ctx, historyKey, raw)
	pipe.LTrim(ctx, historyKey, 0, c.historyLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, kind, err)
	}
	return nil
}

// StoreResponse caches the newest actuator response by actuator name.
func (c *Client) StoreResponse(ctx context.Context, _ resource.Kind, rec data.CommandRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	raw, err := data.Encode(rec)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, ResponseKey(rec.Name), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: response %s: %w", ErrWriteFailed, rec.Name, err)
	}
	return nil
}

// Latest returns the newest cached reading for name on kind.
func (c *Client) Latest(ctx context.Context, kind resource.Kind, name string) (data.TelemetryRecord, error) {
	if !c.IsConnected() {
		return data.TelemetryRecord{}, ErrNotConnected
	}

	raw, err := c.rdb.Get(ctx, LatestKey(kind, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return data.TelemetryRecord{}, ErrNotFound
	}
	if err != nil {
		return data.TelemetryRecord{}, fmt.Errorf("redisdb: get latest: %w", err)
	}
	return data.DecodeTelemetry(raw)
}

// History returns up to limit cached readings for name, newest first.
// Entries that fail to decode are skipped.
func (c *Client) History(ctx context.Context, kind resource.Kind, name string, limit int) ([]data.TelemetryRecord, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if limit <= 0 {
		return nil, nil
	}

	raws, err := c.rdb.LRange(ctx, HistoryKey(kind, name), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisdb: get history: %w", err)
	}

	out := make([]data.TelemetryRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := data.DecodeTelemetry([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// LatestKey names the key holding the newest reading.
func LatestKey(kind resource.Kind, name string) string {
	return keyPrefix + "latest:" + kind.String() + ":" + name
}

// HistoryKey names the list holding recent readings.
func HistoryKey(kind resource.Kind, name string) string {
	return keyPrefix + "history:" + kind.String() + ":" + name
}

// ResponseKey names the key holding an actuator's newest response.
func ResponseKey(name string) string {
	return keyPrefix + "response:" + name
}
