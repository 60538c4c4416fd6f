package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testAPIKey = "test-api-key"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
api:
  host: "127.0.0.1"
  port: 9000
security:
  api_key: "from-file"
device:
  port: 9999
  connect_timeout: 2s
  io_timeout: 3s
  attempt_timeout: 4s
  retry:
    max_attempts: 5
    delay: 100ms
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Security.APIKey != "from-file" {
		t.Errorf("Security.APIKey = %q, want %q", cfg.Security.APIKey, "from-file")
	}
	if cfg.Device.ConnectTimeout != 2*time.Second {
		t.Errorf("Device.ConnectTimeout = %v, want 2s", cfg.Device.ConnectTimeout)
	}
	if cfg.Device.IOTimeout != 3*time.Second {
		t.Errorf("Device.IOTimeout = %v, want 3s", cfg.Device.IOTimeout)
	}
	if cfg.Device.Retry.MaxAttempts != 5 {
		t.Errorf("Device.Retry.MaxAttempts = %d, want 5", cfg.Device.Retry.MaxAttempts)
	}
	if cfg.Device.Retry.Delay != 100*time.Millisecond {
		t.Errorf("Device.Retry.Delay = %v, want 100ms", cfg.Device.Retry.Delay)
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("API_KEY", testAPIKey)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Security.APIKey != testAPIKey {
		t.Errorf("Security.APIKey = %q, want %q", cfg.Security.APIKey, testAPIKey)
	}
	if cfg.Device.Retry.MaxAttempts != 3 {
		t.Errorf("Device.Retry.MaxAttempts = %d, want 3", cfg.Device.Retry.MaxAttempts)
	}
	if cfg.Device.Retry.Delay != 250*time.Millisecond {
		t.Errorf("Device.Retry.Delay = %v, want 250ms", cfg.Device.Retry.Delay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("STRIPGATE_API_KEY", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected validation error without API key, got nil")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("error = %v, want mention of api_key", err)
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	t.Setenv("API_KEY", testAPIKey)
	t.Setenv("STRIPGATE_API_PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric STRIPGATE_API_PORT")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.APIKey = testAPIKey
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing API key",
			mutate:  func(c *Config) { c.Security.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "TLS without certificate",
			mutate:  func(c *Config) { c.API.TLS.Enabled = true },
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Device.Retry.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.Device.Retry.Delay = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Device.ConnectTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero io timeout",
			mutate:  func(c *Config) { c.Device.IOTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS ignored when MQTT disabled",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: false,
		},
		{
			name: "invalid QoS with MQTT enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "audit enabled without path",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "influxdb enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.API.Timeouts.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.Timeouts.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.Timeouts.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("API_KEY", "plain-key")
	t.Setenv("STRIPGATE_API_KEY", "prefixed-key")
	t.Setenv("STRIPGATE_API_HOST", "192.168.1.1")
	t.Setenv("STRIPGATE_API_PORT", "8080")
	t.Setenv("STRIPGATE_DEVICE_PORT", "10000")
	t.Setenv("STRIPGATE_AUDIT_PATH", "/custom/audit.db")
	t.Setenv("STRIPGATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("STRIPGATE_MQTT_USERNAME", "testuser")
	t.Setenv("STRIPGATE_MQTT_PASSWORD", "testpass")
	t.Setenv("STRIPGATE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("STRIPGATE_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Security.APIKey != "prefixed-key" {
		t.Errorf("Security.APIKey = %q, want %q", cfg.Security.APIKey, "prefixed-key")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Device.Port != 10000 {
		t.Errorf("Device.Port = %d, want 10000", cfg.Device.Port)
	}
	if cfg.Audit.Path != "/custom/audit.db" {
		t.Errorf("Audit.Path = %q, want %q", cfg.Audit.Path, "/custom/audit.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.API.Port != 8000 {
		t.Errorf("defaultConfig API.Port = %d, want 8000", cfg.API.Port)
	}
	if cfg.Device.Port != 9999 {
		t.Errorf("defaultConfig Device.Port = %d, want 9999", cfg.Device.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled || cfg.Audit.Enabled {
		t.Error("defaultConfig should leave optional sinks disabled")
	}
}
