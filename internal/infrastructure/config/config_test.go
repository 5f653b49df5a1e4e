package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  qos: 1
home_assistant:
  url: "http://ha.local:8123"
  token: "long-lived-token"
runtime:
  topic_prefix: "hub"
bridges:
  seed_file: "/etc/grayhub/bridges.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.HomeAssistant.URL != "http://ha.local:8123" {
		t.Errorf("HomeAssistant.URL = %q", cfg.HomeAssistant.URL)
	}
	if cfg.Runtime.TopicPrefix != "hub" {
		t.Errorf("Runtime.TopicPrefix = %q, want %q", cfg.Runtime.TopicPrefix, "hub")
	}
	if cfg.Bridges.SeedFile != "/etc/grayhub/bridges.yaml" {
		t.Errorf("Bridges.SeedFile = %q", cfg.Bridges.SeedFile)
	}
	// Untouched sections keep their defaults.
	if cfg.Bridges.BuildConcurrency != 8 {
		t.Errorf("Bridges.BuildConcurrency = %d, want default 8", cfg.Bridges.BuildConcurrency)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("GRAYHUB_HOME_ASSISTANT_TOKEN", "")
	t.Setenv("SUPERVISOR_TOKEN", "")

	path := writeConfig(t, "site:\n  id: test\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for missing token")
	}
	if !strings.Contains(err.Error(), "home_assistant.token") {
		t.Errorf("error = %v, want mention of home_assistant.token", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.HomeAssistant.Token = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "non-http url", mutate: func(c *Config) { c.HomeAssistant.URL = "ws://ha" }, wantErr: "home_assistant.url"},
		{name: "wildcard topic prefix", mutate: func(c *Config) { c.Runtime.TopicPrefix = "hub/#" }, wantErr: "runtime.topic_prefix"},
		{name: "zero build concurrency", mutate: func(c *Config) { c.Bridges.BuildConcurrency = 0 }, wantErr: "build_concurrency"},
		{name: "influx enabled without bucket", mutate: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://influx:8086"
			c.InfluxDB.Org = "home"
		}, wantErr: "influxdb"},
		{name: "empty JWT secret allowed", mutate: func(c *Config) { c.Security.JWT.Secret = "" }},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "jwt.secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
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

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"site.id", "api.port", "home_assistant.token"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestAPIConfig_Timeouts(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60}}}

	if got := cfg.API.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYHUB_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYHUB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYHUB_MQTT_PORT", "8883")
	t.Setenv("GRAYHUB_API_PORT", "not-a-number")
	t.Setenv("GRAYHUB_HOME_ASSISTANT_URL", "https://ha.example.com")
	t.Setenv("GRAYHUB_HOME_ASSISTANT_TOKEN", "ha-token")
	t.Setenv("GRAYHUB_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8482 {
		t.Errorf("API.Port = %d, want default kept on bad value", cfg.API.Port)
	}
	if cfg.HomeAssistant.URL != "https://ha.example.com" {
		t.Errorf("HomeAssistant.URL = %q", cfg.HomeAssistant.URL)
	}
	if cfg.HomeAssistant.Token != "ha-token" {
		t.Errorf("HomeAssistant.Token = %q", cfg.HomeAssistant.Token)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q", cfg.Security.JWT.Secret)
	}
}

func TestApplyEnvOverrides_SupervisorToken(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRAYHUB_HOME_ASSISTANT_TOKEN", "")
	t.Setenv("SUPERVISOR_TOKEN", "supervisor")

	applyEnvOverrides(cfg)

	if cfg.HomeAssistant.Token != "supervisor" {
		t.Errorf("HomeAssistant.Token = %q, want %q", cfg.HomeAssistant.Token, "supervisor")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8482 {
		t.Errorf("API.Port = %d, want 8482", cfg.API.Port)
	}
	if cfg.Runtime.TopicPrefix != "grayhub" {
		t.Errorf("Runtime.TopicPrefix = %q, want grayhub", cfg.Runtime.TopicPrefix)
	}
}
