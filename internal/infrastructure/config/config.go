package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Threshold cooldown bounds in seconds. Values outside the range are
// replaced with DefaultCooldown when the configuration is normalised.
const (
	MinCooldown     = 10
	MaxCooldown     = 7200
	DefaultCooldown = 300

	defaultPollInterval = 30
	defaultQoS          = 1
)

// Config is the root configuration structure for the gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Cloud       CloudConfig       `yaml:"cloud"`
	Threshold   ThresholdConfig   `yaml:"threshold"`
	SystemPerf  SystemPerfConfig  `yaml:"system_perf"`
	Persistence PersistenceConfig `yaml:"persistence"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// GatewayConfig identifies the gateway and switches its subsystems on or off.
type GatewayConfig struct {
	// LocationID names this gateway; it is also the default MQTT client ID prefix.
	LocationID string `yaml:"location_id"`

	// ConstrainedDeviceID is the location of the device that receives cloud commands.
	ConstrainedDeviceID string `yaml:"constrained_device_id"`

	EnableMQTTClient  bool `yaml:"enable_mqtt_client"`
	EnableCloudClient bool `yaml:"enable_cloud_client"`
	EnableSystemPerf  bool `yaml:"enable_system_perf"`
	EnableAPIServer   bool `yaml:"enable_api_server"`
	EnablePersistence bool `yaml:"enable_persistence"`

	// ForwardUpstream relays telemetry and metrics through the cloud connector.
	ForwardUpstream bool `yaml:"forward_upstream"`

	// HandleHumidityChangeOnDevice enables threshold-driven actuation.
	HandleHumidityChangeOnDevice bool `yaml:"handle_humidity_change_on_device"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// CloudConfig contains the upstream broker connection and topic scheme.
type CloudConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	// BaseTopic prefixes every upstream topic, e.g. "/v1/devices".
	BaseTopic string `yaml:"base_topic"`
}

// ThresholdConfig contains the humidity correction policy.
type ThresholdConfig struct {
	SensorType   int     `yaml:"sensor_type"`
	ActuatorName string  `yaml:"actuator_name"`
	ActuatorType int     `yaml:"actuator_type"`
	Low          float64 `yaml:"low"`
	High         float64 `yaml:"high"`
	Nominal      float64 `yaml:"nominal"`

	// Cooldown is the minimum number of seconds between corrective commands.
	Cooldown int `yaml:"cooldown"`
}

// SystemPerfConfig contains local metrics sampling settings.
type SystemPerfConfig struct {
	PollInterval int    `yaml:"poll_interval"`
	DiskPath     string `yaml:"disk_path"`
}

// PersistenceConfig selects the stores telemetry is written to.
type PersistenceConfig struct {
	QoS        int              `yaml:"qos"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	HistoryLen int    `yaml:"history_len"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DialTimeout int    `yaml:"dial_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	Auth      APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig contains device token settings. An empty secret leaves
// the API open.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live event feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file, if present, merged into the process environment
//  4. Environment variables (override file values)
//
// Out-of-range policy values are replaced with defaults and returned as
// warnings rather than failing the load.
func Load(path string) (*Config, []string, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(envFilePath()); err != nil {
		return nil, nil, fmt.Errorf("loading env file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, cfg.Normalize(), nil
}

// envFilePath returns the dotenv file consulted by Load.
func envFilePath() string {
	if v := os.Getenv("GRAYLOGIC_ENV_FILE"); v != "" {
		return v
	}
	return ".env"
}

// loadDotEnv merges a dotenv file into the environment. Variables already
// set in the environment win. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			LocationID:                   "gatewaydevice001",
			ConstrainedDeviceID:          "constraineddevice001",
			EnableMQTTClient:             true,
			EnablePersistence:            false,
			ForwardUpstream:              true,
			HandleHumidityChangeOnDevice: true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				Enabled:      true,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Cloud: CloudConfig{
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host: "localhost",
					Port: 8883,
					TLS:  true,
				},
				QoS:       1,
				KeepAlive: 60,
				Reconnect: MQTTReconnectConfig{
					Enabled:      true,
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
			BaseTopic: "/v1.6/devices/",
		},
		Threshold: ThresholdConfig{
			SensorType:   1010,
			ActuatorName: "HumidifierActuator",
			ActuatorType: 1010,
			Low:          30,
			High:         50,
			Nominal:      40,
			Cooldown:     DefaultCooldown,
		},
		SystemPerf: SystemPerfConfig{
			PollInterval: defaultPollInterval,
			DiskPath:     "/",
		},
		Persistence: PersistenceConfig{
			QoS: 1,
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				HistoryLen: 100,
			},
			Database: DatabaseConfig{
				Path:        "./data/gateway.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				BatchSize:     100,
				FlushInterval: 10,
			},
			ClickHouse: ClickHouseConfig{
				Addr:        "localhost:9000",
				Database:    "default",
				Username:    "default",
				DialTimeout: 5,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("GRAYLOGIC_GATEWAY_LOCATION_ID"); v != "" {
		cfg.Gateway.LocationID = v
	}

	// Device-facing MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Cloud MQTT
	if v := os.Getenv("GRAYLOGIC_CLOUD_HOST"); v != "" {
		cfg.Cloud.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_CLOUD_USERNAME"); v != "" {
		cfg.Cloud.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.MQTT.Auth.Password = v
	}

	// Persistence
	if v := os.Getenv("GRAYLOGIC_REDIS_ADDR"); v != "" {
		cfg.Persistence.Redis.Addr = v
	}
	if v := os.Getenv("GRAYLOGIC_REDIS_PASSWORD"); v != "" {
		cfg.Persistence.Redis.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Persistence.Database.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.Persistence.InfluxDB.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_CLICKHOUSE_PASSWORD"); v != "" {
		cfg.Persistence.ClickHouse.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors that cannot be defaulted.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.LocationID == "" {
		errs = append(errs, "gateway.location_id is required")
	}

	if c.Gateway.EnableMQTTClient {
		errs = append(errs, validateMQTT("mqtt", c.MQTT)...)
	}
	if c.Gateway.EnableCloudClient {
		errs = append(errs, validateMQTT("cloud.mqtt", c.Cloud.MQTT)...)
		if c.Cloud.BaseTopic == "" {
			errs = append(errs, "cloud.base_topic is required when the cloud client is enabled")
		}
	}

	if c.Gateway.HandleHumidityChangeOnDevice && c.Threshold.Low >= c.Threshold.High {
		errs = append(errs, "threshold.low must be below threshold.high")
	}

	if c.Persistence.Database.Enabled && c.Persistence.Database.Path == "" {
		errs = append(errs, "persistence.database.path is required")
	}
	if c.Persistence.InfluxDB.Enabled && c.Persistence.InfluxDB.URL == "" {
		errs = append(errs, "persistence.influxdb.url is required")
	}

	if c.Gateway.EnableAPIServer && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateMQTT(section string, m MQTTConfig) []string {
	var errs []string
	if m.Broker.Host == "" {
		errs = append(errs, section+".broker.host is required")
	}
	if m.Broker.Port < 1 || m.Broker.Port > 65535 {
		errs = append(errs, section+".broker.port must be between 1 and 65535")
	}
	return errs
}

// Normalize replaces out-of-range policy values with their defaults.
// Each replacement is reported as a warning; none of them is fatal.
func (c *Config) Normalize() []string {
	var warnings []string

	if c.Threshold.Cooldown < MinCooldown || c.Threshold.Cooldown > MaxCooldown {
		warnings = append(warnings, fmt.Sprintf(
			"threshold.cooldown %ds outside [%d, %d], using %ds",
			c.Threshold.Cooldown, MinCooldown, MaxCooldown, DefaultCooldown))
		c.Threshold.Cooldown = DefaultCooldown
	}

	for _, q := range []struct {
		key string
		qos *int
	}{
		{"mqtt.qos", &c.MQTT.QoS},
		{"cloud.mqtt.qos", &c.Cloud.MQTT.QoS},
		{"persistence.qos", &c.Persistence.QoS},
	} {
		if *q.qos < 0 || *q.qos > 2 {
			warnings = append(warnings, fmt.Sprintf("%s %d not in {0, 1, 2}, using %d", q.key, *q.qos, defaultQoS))
			*q.qos = defaultQoS
		}
	}

	if c.Gateway.HandleHumidityChangeOnDevice &&
		(c.Threshold.Nominal < c.Threshold.Low || c.Threshold.Nominal > c.Threshold.High) {
		nominal := (c.Threshold.Low + c.Threshold.High) / 2
		warnings = append(warnings, fmt.Sprintf(
			"threshold.nominal %.1f outside [%.1f, %.1f], using %.1f",
			c.Threshold.Nominal, c.Threshold.Low, c.Threshold.High, nominal))
		c.Threshold.Nominal = nominal
	}

	if c.SystemPerf.PollInterval < 1 {
		warnings = append(warnings, fmt.Sprintf(
			"system_perf.poll_interval %ds too small, using %ds",
			c.SystemPerf.PollInterval, defaultPollInterval))
		c.SystemPerf.PollInterval = defaultPollInterval
	}

	return warnings
}

// CooldownDuration returns the threshold cooldown as a Duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.Threshold.Cooldown) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
