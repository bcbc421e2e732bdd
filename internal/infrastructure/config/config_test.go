package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temporary config.yaml and points the
// dotenv lookup at an empty temp directory so a stray .env cannot leak in.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_ENV_FILE", filepath.Join(tmpDir, "missing.env"))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  location_id: "gateway-test"
  enable_mqtt_client: true
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  qos: 2
threshold:
  low: 25
  high: 55
  nominal: 40
  cooldown: 60
`)

	cfg, warnings, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Load() warnings = %v, want none", warnings)
	}

	if cfg.Gateway.LocationID != "gateway-test" {
		t.Errorf("Gateway.LocationID = %q, want %q", cfg.Gateway.LocationID, "gateway-test")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT.QoS = %d, want 2", cfg.MQTT.QoS)
	}
	if cfg.CooldownDuration() != time.Minute {
		t.Errorf("CooldownDuration() = %v, want 1m", cfg.CooldownDuration())
	}

	// Defaults survive for unspecified sections
	if cfg.SystemPerf.PollInterval != defaultPollInterval {
		t.Errorf("SystemPerf.PollInterval = %d, want %d", cfg.SystemPerf.PollInterval, defaultPollInterval)
	}
	if cfg.Threshold.ActuatorName != "HumidifierActuator" {
		t.Errorf("Threshold.ActuatorName = %q, want default", cfg.Threshold.ActuatorName)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, _, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  location_id: ""
`)

	_, _, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty gateway.location_id, got nil")
	}
	if !strings.Contains(err.Error(), "gateway.location_id") {
		t.Errorf("error = %v, want mention of gateway.location_id", err)
	}
}

func TestLoad_CooldownOutOfRangeIsDefaulted(t *testing.T) {
	tests := []struct {
		name     string
		cooldown int
	}{
		{"below minimum", 5},
		{"above maximum", 7201},
		{"zero", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "threshold:\n  cooldown: "+strconv.Itoa(tt.cooldown)+"\n")

			cfg, warnings, err := Load(configPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Threshold.Cooldown != DefaultCooldown {
				t.Errorf("Threshold.Cooldown = %d, want %d", cfg.Threshold.Cooldown, DefaultCooldown)
			}
			if len(warnings) != 1 || !strings.Contains(warnings[0], "threshold.cooldown") {
				t.Errorf("warnings = %v, want one cooldown warning", warnings)
			}
		})
	}
}

func TestLoad_CooldownBoundsAccepted(t *testing.T) {
	for _, cooldown := range []int{MinCooldown, MaxCooldown} {
		configPath := writeConfig(t, "threshold:\n  cooldown: "+strconv.Itoa(cooldown)+"\n")

		cfg, warnings, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Threshold.Cooldown != cooldown {
			t.Errorf("Threshold.Cooldown = %d, want %d", cfg.Threshold.Cooldown, cooldown)
		}
		if len(warnings) != 0 {
			t.Errorf("warnings = %v, want none", warnings)
		}
	}
}

// =============================================================================
// Environment Overrides
// =============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  broker:
    host: "file-host"
`)
	t.Setenv("GRAYLOGIC_MQTT_HOST", "env-host")
	t.Setenv("GRAYLOGIC_MQTT_PORT", "2883")
	t.Setenv("GRAYLOGIC_REDIS_ADDR", "redis.local:6380")
	t.Setenv("GRAYLOGIC_LOG_LEVEL", "debug")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-host" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "env-host")
	}
	if cfg.MQTT.Broker.Port != 2883 {
		t.Errorf("MQTT.Broker.Port = %d, want 2883", cfg.MQTT.Broker.Port)
	}
	if cfg.Persistence.Redis.Addr != "redis.local:6380" {
		t.Errorf("Persistence.Redis.Addr = %q, want %q", cfg.Persistence.Redis.Addr, "redis.local:6380")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	configPath := writeConfig(t, "gateway:\n  location_id: gw\n")

	envPath := filepath.Join(t.TempDir(), "gateway.env")
	if err := os.WriteFile(envPath, []byte("GRAYLOGIC_CLOUD_PASSWORD=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("GRAYLOGIC_ENV_FILE", envPath)

	// Register cleanup for the variable godotenv will set, then clear it.
	t.Setenv("GRAYLOGIC_CLOUD_PASSWORD", "")
	os.Unsetenv("GRAYLOGIC_CLOUD_PASSWORD") //nolint:errcheck // Restored by t.Setenv cleanup

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cloud.MQTT.Auth.Password != "from-dotenv" {
		t.Errorf("Cloud.MQTT.Auth.Password = %q, want %q", cfg.Cloud.MQTT.Auth.Password, "from-dotenv")
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	configPath := writeConfig(t, "gateway:\n  location_id: gw\n")

	envPath := filepath.Join(t.TempDir(), "gateway.env")
	if err := os.WriteFile(envPath, []byte("GRAYLOGIC_API_HOST=10.0.0.1\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("GRAYLOGIC_ENV_FILE", envPath)
	t.Setenv("GRAYLOGIC_API_HOST", "127.0.0.1")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:   "out-of-range qos is left to Normalize",
			mutate: func(c *Config) { c.MQTT.QoS = 3 },
		},
		{
			name:    "missing mqtt host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name: "mqtt disabled skips mqtt checks",
			mutate: func(c *Config) {
				c.Gateway.EnableMQTTClient = false
				c.MQTT.Broker.Host = ""
			},
		},
		{
			name: "cloud enabled requires base topic",
			mutate: func(c *Config) {
				c.Gateway.EnableCloudClient = true
				c.Cloud.BaseTopic = ""
			},
			wantErr: "cloud.base_topic",
		},
		{
			name: "inverted threshold band",
			mutate: func(c *Config) {
				c.Threshold.Low = 60
				c.Threshold.High = 40
			},
			wantErr: "threshold.low",
		},
		{
			name: "inverted band ignored with monitor off",
			mutate: func(c *Config) {
				c.Gateway.HandleHumidityChangeOnDevice = false
				c.Threshold.Low = 60
				c.Threshold.High = 40
			},
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.Persistence.InfluxDB.Enabled = true
			},
			wantErr: "persistence.influxdb.url",
		},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.Gateway.EnableAPIServer = true
				c.API.Port = 70000
			},
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_NormalizeNominalOutsideBand(t *testing.T) {
	cfg := defaultConfig()
	cfg.Threshold.Nominal = 80

	warnings := cfg.Normalize()

	if len(warnings) != 1 {
		t.Fatalf("Normalize() warnings = %v, want 1", warnings)
	}
	if cfg.Threshold.Nominal != 40 {
		t.Errorf("Threshold.Nominal = %v, want 40", cfg.Threshold.Nominal)
	}
}

func TestConfig_NormalizeQoS(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 3
	cfg.Cloud.MQTT.QoS = -1
	cfg.Persistence.QoS = 2

	warnings := cfg.Normalize()

	if len(warnings) != 2 {
		t.Fatalf("Normalize() warnings = %v, want 2", warnings)
	}
	if cfg.MQTT.QoS != defaultQoS || cfg.Cloud.MQTT.QoS != defaultQoS {
		t.Errorf("QoS = %d/%d, want %d", cfg.MQTT.QoS, cfg.Cloud.MQTT.QoS, defaultQoS)
	}
	if cfg.Persistence.QoS != 2 {
		t.Errorf("Persistence.QoS = %d, valid value should be kept", cfg.Persistence.QoS)
	}
}

func TestConfig_TimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()

	if cfg.GetReadTimeout() != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", cfg.GetWriteTimeout())
	}
	if cfg.GetIdleTimeout() != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", cfg.GetIdleTimeout())
	}
}
