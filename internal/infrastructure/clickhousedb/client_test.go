package clickhousedb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

type execCall struct {
	query string
	args  []any
}

// fakeConn records statements instead of talking to a server.
type fakeConn struct {
	mu      sync.Mutex
	calls   []execCall
	pingErr error
	execErr error
	closed  int
}

func (f *fakeConn) Ping(context.Context) error { return f.pingErr }

func (f *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	return f.execErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) inserts() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.calls {
		if strings.Contains(c.query, "INSERT") {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	c, err := newClient(context.Background(), fc)
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}
	return c, fc
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.ClickHouseConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestNewClient_CreatesSchema(t *testing.T) {
	_, fc := newTestClient(t)

	if len(fc.calls) != len(AllTables()) {
		t.Fatalf("exec calls = %d, want %d", len(fc.calls), len(AllTables()))
	}
	for i, call := range fc.calls {
		if !strings.Contains(call.query, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("call %d = %q, want CREATE TABLE", i, call.query)
		}
	}
}

func TestNewClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		conn    *fakeConn
		wantErr error
	}{
		{"ping fails", &fakeConn{pingErr: errors.New("refused")}, ErrConnectionFailed},
		{"schema fails", &fakeConn{execErr: errors.New("no permission")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(context.Background(), tt.conn)
			if err == nil {
				t.Fatal("newClient() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("newClient() error = %v, want %v", err, tt.wantErr)
			}
			if tt.conn.closed != 1 {
				t.Errorf("conn closed %d times, want 1", tt.conn.closed)
			}
		})
	}
}

// =============================================================================
// Store Tests
// =============================================================================

func TestStore_InsertsRow(t *testing.T) {
	c, fc := newTestClient(t)
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := data.TelemetryRecord{
		Name:       "HumiditySensor",
		TypeID:     1010,
		LocationID: "constraineddevice001",
		Value:      37.5,
		TimeStamp:  data.Timestamp(ts),
	}
	if err := c.Store(context.Background(), resource.ConstrainedSensorMsg, 1, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	inserts := fc.inserts()
	if len(inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(inserts))
	}
	args := inserts[0].args
	if got, ok := args[0].(time.Time); !ok || !got.Equal(ts) {
		t.Errorf("time_stamp arg = %v, want %v", args[0], ts)
	}
	if args[1] != "ConstrainedDevice/SensorMsg" || args[3] != "HumiditySensor" || args[6] != 37.5 {
		t.Errorf("args = %v", args)
	}
}

func TestStore_BadTimestampUsesClock(t *testing.T) {
	c, fc := newTestClient(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Store(context.Background(), resource.ConstrainedSensorMsg, 0, data.TelemetryRecord{TimeStamp: "bad"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if got := fc.inserts()[0].args[0].(time.Time); !got.Equal(now) {
		t.Errorf("time_stamp = %v, want %v", got, now)
	}
}

func TestStoreResponse_InsertsRow(t *testing.T) {
	c, fc := newTestClient(t)

	rec := data.CommandRecord{Name: "HumidifierActuator", Command: data.CommandOff, StateData: "off"}
	if err := c.StoreResponse(context.Background(), resource.ConstrainedActuatorResponse, rec); err != nil {
		t.Fatalf("StoreResponse() error = %v", err)
	}

	inserts := fc.inserts()
	if len(inserts) != 1 || !strings.Contains(inserts[0].query, "actuator_responses") {
		t.Fatalf("inserts = %+v", inserts)
	}
	if inserts[0].args[5] != int8(0) {
		t.Errorf("command arg = %#v, want int8(0)", inserts[0].args[5])
	}
}

func TestStore_Errors(t *testing.T) {
	c, fc := newTestClient(t)
	fc.execErr = errors.New("table is read-only")

	err := c.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{})
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Store() error = %v, want ErrWriteFailed", err)
	}

	_ = c.Close()
	_ = c.Close()
	if fc.closed != 1 {
		t.Errorf("conn closed %d times, want 1", fc.closed)
	}
	if err := c.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Store() after Close error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}
}
