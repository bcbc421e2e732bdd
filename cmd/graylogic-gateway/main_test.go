package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
)

// writeConfig writes a config file and points GRAYLOGIC_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
	t.Setenv("GRAYLOGIC_ENV_FILE", filepath.Join(dir, "missing.env"))
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidThresholdBand verifies validation errors abort startup.
func TestRun_InvalidThresholdBand(t *testing.T) {
	writeConfig(t, `
gateway:
  location_id: gw-test
  enable_mqtt_client: false
threshold:
  low: 60
  high: 40
logging:
  level: error
  format: text
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "threshold.low") {
		t.Fatalf("run() error = %v, want threshold validation failure", err)
	}
}

// TestRun_UnwritableDatabase verifies a database that cannot open is fatal.
func TestRun_UnwritableDatabase(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, fmt.Sprintf(`
gateway:
  location_id: gw-test
  enable_mqtt_client: false
  enable_persistence: true
persistence:
  database:
    enabled: true
    path: %s/sub/gateway.db
logging:
  level: error
  format: text
`, blocker))

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail when the database directory cannot be created")
	}
}

// TestRun_LocalGateway runs the gateway with only the API server and the
// local database, submits a reading over HTTP and checks it was persisted
// by the time run returns.
func TestRun_LocalGateway(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	port := freePort(t)

	writeConfig(t, fmt.Sprintf(`
gateway:
  location_id: gw-test
  enable_mqtt_client: false
  enable_cloud_client: false
  enable_system_perf: false
  enable_api_server: true
  enable_persistence: true
  handle_humidity_change_on_device: true
persistence:
  database:
    enabled: true
    path: %s
    wal_mode: true
    busy_timeout: 5
api:
  host: 127.0.0.1
  port: %d
logging:
  level: error
  format: text
`, dbPath, port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	waitHealthy(t, base+"/health")

	body := `{"name":"HumiditySensor","typeID":1010,"locationID":"constraineddevice001","value":42.0,"timeStamp":"2026-05-01T12:00:00Z"}`
	resp, err := http.Post(base+"/resources/SensorMsg", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	db, err := database.Open(config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	recs, err := database.NewTelemetryStore(db).Recent(context.Background(), "HumiditySensor", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Value != 42.0 {
		t.Errorf("persisted = %+v, want the submitted reading", recs)
	}
}

func waitHealthy(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("%s never became healthy", url)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}
	t.Setenv("GRAYLOGIC_CONFIG", "/etc/gateway.yaml")
	if got := getConfigPath(); got != "/etc/gateway.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}
