package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
hub:
  host: "192.168.1.50"
  port: 6681
engine:
  temperature_units: "C"
  include_all_circuits: true
mqtt:
  enabled: false
api:
  host: "127.0.0.1"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Host != "192.168.1.50" {
		t.Errorf("Hub.Host = %q, want %q", cfg.Hub.Host, "192.168.1.50")
	}
	if cfg.Hub.Port != 6681 {
		t.Errorf("Hub.Port = %d, want 6681", cfg.Hub.Port)
	}
	if cfg.Engine.TemperatureUnits != "C" {
		t.Errorf("Engine.TemperatureUnits = %q, want %q", cfg.Engine.TemperatureUnits, "C")
	}
	if !cfg.Engine.IncludeAllCircuits {
		t.Error("Engine.IncludeAllCircuits = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
hub:
  host: "pool-hub.local"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Port != 6681 {
		t.Errorf("Hub.Port = %d, want default 6681", cfg.Hub.Port)
	}
	if cfg.Hub.MaxBufferBytes != 64*1024 {
		t.Errorf("Hub.MaxBufferBytes = %d, want default 65536", cfg.Hub.MaxBufferBytes)
	}
	if cfg.Engine.TemperatureUnits != "F" {
		t.Errorf("Engine.TemperatureUnits = %q, want default F", cfg.Engine.TemperatureUnits)
	}
	if !cfg.Engine.SupportVariableSpeedPumps {
		t.Error("Engine.SupportVariableSpeedPumps = false, want default true")
	}
	if cfg.Resilience.Breaker.FailureThreshold != 5 {
		t.Errorf("Breaker.FailureThreshold = %d, want default 5", cfg.Resilience.Breaker.FailureThreshold)
	}
	if got, want := cfg.Hub.SilenceThreshold(), 90*time.Second; got != want {
		t.Errorf("SilenceThreshold() = %v, want %v", got, want)
	}
	if got, want := cfg.Engine.DiscoveryPacing(), 150*time.Millisecond; got != want {
		t.Errorf("DiscoveryPacing() = %v, want %v", got, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "hub: [not a map"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing hub host",
			mutate:  func(c *Config) { c.Hub.Host = "" },
			wantSub: "hub.host",
		},
		{
			name:    "bad hub port",
			mutate:  func(c *Config) { c.Hub.Port = 0 },
			wantSub: "hub.port",
		},
		{
			name:    "tiny buffer cap",
			mutate:  func(c *Config) { c.Hub.MaxBufferBytes = 16 },
			wantSub: "max_buffer_bytes",
		},
		{
			name:    "bad temperature units",
			mutate:  func(c *Config) { c.Engine.TemperatureUnits = "K" },
			wantSub: "temperature_units",
		},
		{
			name: "silence threshold below heartbeat",
			mutate: func(c *Config) {
				c.Hub.HeartbeatIntervalSeconds = 60
				c.Hub.SilenceThresholdSeconds = 30
			},
			wantSub: "silence_threshold",
		},
		{
			name: "mqtt enabled with bad qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantSub: "mqtt.qos",
		},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantSub: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Hub.Host = "pool-hub.local"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POOLLOGIC_HUB_HOST", "10.0.0.9")
	t.Setenv("POOLLOGIC_HUB_PORT", "7000")
	t.Setenv("POOLLOGIC_MQTT_PASSWORD", "secret")

	cfg, err := Load(writeConfig(t, "hub:\n  host: \"ignored.local\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Host != "10.0.0.9" {
		t.Errorf("Hub.Host = %q, want env override %q", cfg.Hub.Host, "10.0.0.9")
	}
	if cfg.Hub.Port != 7000 {
		t.Errorf("Hub.Port = %d, want env override 7000", cfg.Hub.Port)
	}
	if cfg.MQTT.Password != "secret" {
		t.Errorf("MQTT.Password = %q, want env override", cfg.MQTT.Password)
	}
}
