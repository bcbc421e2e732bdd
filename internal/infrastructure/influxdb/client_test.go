package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	status int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "gateway",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectFake(t *testing.T) (*Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client, fake
}

func waitForLines(t *testing.T, fake *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lines := fake.written(); len(lines) >= n {
			return lines
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server received %d lines, want %d", len(fake.written()), n)
	return nil
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if _, err := Connect(testConfig("http://127.0.0.1:1")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	client, _ := connectFake(t)

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close() //nolint:errcheck // Test
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestStore_WritesTelemetryPoint(t *testing.T) {
	client, fake := connectFake(t)

	rec := data.TelemetryRecord{
		Name:       "HumiditySensor",
		TypeID:     1010,
		LocationID: "constraineddevice001",
		Value:      37.5,
		TimeStamp:  "2026-05-01T12:00:00Z",
	}
	if err := client.Store(context.Background(), resource.ConstrainedSensorMsg, 1, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	client.Flush()

	lines := waitForLines(t, fake, 1)
	line := lines[0]
	for _, want := range []string{"telemetry,", "name=HumiditySensor", "location=constraineddevice001", "value=37.5"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestStore_AfterClose(t *testing.T) {
	client, _ := connectFake(t)
	client.Close() //nolint:errcheck // Test

	err := client.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{Name: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Store() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestTelemetryPoint(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := data.TelemetryRecord{Name: "TempSensor", LocationID: "loc", Value: 21, TimeStamp: "garbage"}

	p := telemetryPoint(resource.ConstrainedSensorMsg, 1, rec, now)

	if p.Name() != measurementTelemetry {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(now) {
		t.Errorf("Time() = %v, want fallback %v", p.Time(), now)
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["resource"] != "PIOT/ConstrainedDevice/SensorMsg" || tags["name"] != "TempSensor" {
		t.Errorf("tags = %v", tags)
	}
}

func TestResponsePoint(t *testing.T) {
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := data.CommandRecord{Name: "HumidifierActuator", Command: data.CommandOn, TimeStamp: data.Timestamp(ts)}

	p := responsePoint(resource.ConstrainedActuatorResponse, rec, time.Now())

	if p.Name() != measurementResponse || !p.Time().Equal(ts) {
		t.Errorf("point = %s @ %v", p.Name(), p.Time())
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["command"] != int64(1) {
		t.Errorf("command field = %#v, want int64(1)", fields["command"])
	}
}

func TestSetOnError_WrapsAsyncFailures(t *testing.T) {
	client, fake := connectFake(t)
	fake.mu.Lock()
	fake.status = http.StatusBadRequest
	fake.mu.Unlock()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := client.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{Name: "x"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write failure was not reported")
	}
}
