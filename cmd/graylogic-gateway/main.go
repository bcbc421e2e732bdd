// Gray Logic Gateway - edge routing hub for constrained IoT devices.
//
// The gateway sits between constrained devices on a local MQTT broker and an
// upstream cloud service. It routes sensor readings, actuator commands and
// system metrics between them, corrects humidity locally through a threshold
// monitor, and persists telemetry to the configured stores.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-gateway/migrations"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/cloud"
	"github.com/nerrad567/gray-logic-gateway/internal/hub"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/clickhousedb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/redisdb"
	"github.com/nerrad567/gray-logic-gateway/internal/persistence"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
	"github.com/nerrad567/gray-logic-gateway/internal/sysperf"
	"github.com/nerrad567/gray-logic-gateway/internal/threshold"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds hub shutdown, including in-flight persistence.
	shutdownTimeout = 15 * time.Second

	// storeConnectTimeout bounds connecting to each network store.
	storeConnectTimeout = 10 * time.Second
)

// deviceKinds are the device resources the gateway subscribes to on every
// connect.
var deviceKinds = []resource.Kind{
	resource.ConstrainedSensorMsg,
	resource.ConstrainedActuatorResponse,
	resource.ConstrainedSystemPerf,
	resource.ConstrainedMgmtStatusMsg,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the gateway and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"location_id", cfg.Gateway.LocationID,
		"level", cfg.Logging.Level,
	)
	for _, w := range warnings {
		log.Warn("configuration adjusted", "detail", w)
	}

	// Persistence
	var store persistence.Store
	if cfg.Gateway.EnablePersistence {
		fanout, closers, storeErr := openStores(ctx, cfg, log)
		defer closeAll(closers, log)
		if storeErr != nil {
			return storeErr
		}
		if fanout.Len() > 0 {
			store = fanout
			log.Info("persistence enabled", "stores", fanout.Names())
		} else {
			log.Warn("persistence enabled but no store is available")
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := hub.Options{
		ForwardUpstream: cfg.Gateway.ForwardUpstream,
		Registerer:      registry,
		Logger:          log.With("component", "hub"),
		CommandQoS:      cfg.MQTT.QoS,
		Store:           store,
		StoreQoS:        cfg.Persistence.QoS,
	}

	// Device connector
	var devices *mqtt.Client
	if cfg.Gateway.EnableMQTTClient {
		devices = mqtt.New(cfg.MQTT,
			mqtt.WithName("devices"),
			mqtt.WithBaseline(deviceKinds...),
			mqtt.WithStatus(resource.GatewayMgmtStatusMsg),
			mqtt.WithLogger(log.With("component", "mqtt")),
		)
		opts.Devices = devices
		opts.Subscriptions = deviceKinds
	}

	// Cloud relay
	var relay *cloud.Relay
	if cfg.Gateway.EnableCloudClient {
		transport := mqtt.New(cfg.Cloud.MQTT,
			mqtt.WithName("cloud"),
			mqtt.WithLogger(log.With("component", "cloud-mqtt")),
		)
		relay = cloud.New(transport, cloud.Config{
			BaseTopic:           cfg.Cloud.BaseTopic,
			ConstrainedDeviceID: cfg.Gateway.ConstrainedDeviceID,
			QoS:                 cfg.Cloud.MQTT.QoS,
		}, cloud.WithLogger(log.With("component", "cloud")))
		opts.Cloud = relay
	}

	// Threshold monitor
	if cfg.Gateway.HandleHumidityChangeOnDevice {
		monitor, monErr := threshold.NewMonitor(threshold.Config{
			SensorType:   cfg.Threshold.SensorType,
			ActuatorName: cfg.Threshold.ActuatorName,
			ActuatorType: cfg.Threshold.ActuatorType,
			Low:          cfg.Threshold.Low,
			High:         cfg.Threshold.High,
			Nominal:      cfg.Threshold.Nominal,
			Cooldown:     cfg.CooldownDuration(),
		})
		if monErr != nil {
			return fmt.Errorf("creating threshold monitor: %w", monErr)
		}
		opts.Monitor = monitor
	}

	// System performance sampler
	var sampler *sysperf.Sampler
	if cfg.Gateway.EnableSystemPerf {
		sampler = sysperf.New(sysperf.Config{
			LocationID: cfg.Gateway.LocationID,
			Interval:   time.Duration(cfg.SystemPerf.PollInterval) * time.Second,
			DiskPath:   cfg.SystemPerf.DiskPath,
		}, sysperf.WithLogger(log.With("component", "sysperf")))
		opts.Sampler = sampler
	}

	// Event feed, shared by the hub (publisher) and the API server
	var events *api.EventHub
	if cfg.Gateway.EnableAPIServer {
		events = api.NewEventHub(cfg.API.WebSocket, log.With("component", "websocket"))
		opts.Events = events
	}

	router := hub.New(opts)

	if devices != nil {
		devices.SetSink(router)
		devices.SetObserver(router)
	}
	if relay != nil {
		relay.SetSink(router)
	}
	if sampler != nil {
		sampler.SetSink(router)
	}

	if cfg.Gateway.EnableAPIServer {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Router:   router,
			Events:   events,
			Gatherer: registry,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		router.SetServer(server)
	}

	// A failed subsystem leaves the rest running.
	if startErr := router.Start(ctx); startErr != nil {
		log.Warn("gateway started with failures", "error", startErr)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	router.Stop(stopCtx)

	log.Info("Gray Logic Gateway stopped", "stats", router.Stats())
	return nil
}

// openStores connects every enabled store. The local database must open;
// a network store that cannot be reached is skipped with a warning.
//
// Returns:
//   - *persistence.Fanout: The reachable stores
//   - []io.Closer: Stores to close on shutdown, also populated on error
//   - error: If the local database cannot be opened or migrated
func openStores(ctx context.Context, cfg *config.Config, log *logging.Logger) (*persistence.Fanout, []io.Closer, error) {
	fanout := persistence.NewFanout()
	var closers []io.Closer
	pc := cfg.Persistence

	if pc.Database.Enabled {
		db, err := database.Open(pc.Database)
		if err != nil {
			return nil, closers, fmt.Errorf("opening database: %w", err)
		}
		closers = append(closers, db)
		if err := db.Migrate(ctx); err != nil {
			return nil, closers, fmt.Errorf("running migrations: %w", err)
		}
		fanout.Add("sqlite", database.NewTelemetryStore(db))
		log.Info("database connected", "path", pc.Database.Path)
	}

	connectCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	if pc.Redis.Enabled {
		rdb, err := redisdb.Connect(connectCtx, pc.Redis)
		if err != nil {
			log.Warn("redis unavailable, skipping", "addr", pc.Redis.Addr, "error", err)
		} else {
			closers = append(closers, rdb)
			fanout.Add("redis", rdb)
			log.Info("redis connected", "addr", pc.Redis.Addr)
		}
	}

	if pc.InfluxDB.Enabled {
		influx, err := influxdb.Connect(pc.InfluxDB)
		if err != nil {
			log.Warn("influxdb unavailable, skipping", "url", pc.InfluxDB.URL, "error", err)
		} else {
			influx.SetOnError(func(err error) {
				log.Warn("influxdb write failed", "error", err)
			})
			closers = append(closers, influx)
			fanout.Add("influxdb", influx)
			log.Info("influxdb connected", "url", pc.InfluxDB.URL, "bucket", pc.InfluxDB.Bucket)
		}
	}

	if pc.ClickHouse.Enabled {
		ch, err := clickhousedb.Connect(connectCtx, pc.ClickHouse)
		if err != nil {
			log.Warn("clickhouse unavailable, skipping", "addr", pc.ClickHouse.Addr, "error", err)
		} else {
			closers = append(closers, ch)
			fanout.Add("clickhouse", ch)
			log.Info("clickhouse connected", "addr", pc.ClickHouse.Addr, "database", pc.ClickHouse.Database)
		}
	}

	return fanout, closers, nil
}

// closeAll closes stores in reverse order of opening.
func closeAll(closers []io.Closer, log *logging.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
