package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Pool Logic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub        HubConfig        `yaml:"hub"`
	Engine     EngineConfig     `yaml:"engine"`
	Resilience ResilienceConfig `yaml:"resilience"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HubConfig contains connection settings for the pool controller hub.
type HubConfig struct {
	// Host is the hub's IP address or hostname on the local network.
	Host string `yaml:"host"`

	// Port is the hub's telnet-style command port. Default: 6681.
	Port int `yaml:"port"`

	// Username and Password are hub credentials for gateway-relayed
	// connections. Local LAN sessions are unauthenticated and leave
	// these empty.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeoutSeconds is the maximum time for one TCP connect attempt.
	// Default: 10.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`

	// HeartbeatIntervalSeconds is how often the silence watchdog runs.
	// Default: 30.
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`

	// SilenceThresholdSeconds forces a reconnect when nothing has been
	// received for this long, even if the socket reports no error.
	// Default: 90.
	SilenceThresholdSeconds int `yaml:"silence_threshold_seconds"`

	// ReconnectCooldownSeconds is the wait after an unexpected close before
	// a reconnect is attempted. Default: 5.
	ReconnectCooldownSeconds int `yaml:"reconnect_cooldown_seconds"`

	// MinReconnectIntervalSeconds throttles reconnect attempts so that
	// near-simultaneous triggers collapse into one. Default: 10.
	MinReconnectIntervalSeconds int `yaml:"min_reconnect_interval_seconds"`

	// MaxBufferBytes caps the inbound line-assembly buffer. A line that
	// would grow past the cap is discarded. Default: 65536.
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
}

// EngineConfig contains entity-engine behaviour settings.
type EngineConfig struct {
	// IncludeAllCircuits surfaces every non-legacy circuit as a Feature
	// regardless of its feature flag. Default: false.
	IncludeAllCircuits bool `yaml:"include_all_circuits"`

	// TemperatureUnits selects "F" or "C" for exposed temperatures.
	// Default: "F".
	TemperatureUnits string `yaml:"temperature_units"`

	// SupportVariableSpeedPumps enables the derived pump sensor model.
	// Default: true.
	SupportVariableSpeedPumps bool `yaml:"support_variable_speed_pumps"`

	// DiscoveryPacingMillis is the delay between discovery category
	// queries, to avoid overwhelming the hub. Default: 150.
	DiscoveryPacingMillis int `yaml:"discovery_pacing_millis"`

	// DiscoveryTimeoutSeconds bounds one full discovery cycle. Default: 30.
	DiscoveryTimeoutSeconds int `yaml:"discovery_timeout_seconds"`

	// ParseErrorWarnThreshold and ParseErrorReconnectThreshold control the
	// escalating treatment of hub-reported parse errors within the rolling
	// window: at or above the warn threshold the rate is logged as an
	// error, and at the reconnect threshold a full reconnect is forced on
	// the assumption that hub and client have desynchronised.
	ParseErrorWarnThreshold      int `yaml:"parse_error_warn_threshold"`
	ParseErrorReconnectThreshold int `yaml:"parse_error_reconnect_threshold"`
	ParseErrorWindowSeconds      int `yaml:"parse_error_window_seconds"`
}

// ResilienceConfig contains circuit breaker, retry, rate limiter and
// dead-letter queue settings for hub operations.
type ResilienceConfig struct {
	Breaker    BreakerConfig    `yaml:"breaker"`
	Retry      RetryConfig      `yaml:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
}

// BreakerConfig contains circuit breaker settings for the connect path.
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	SuccessThreshold    int `yaml:"success_threshold"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// RetryConfig contains retry-with-backoff settings for hub commands.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelayMillis int     `yaml:"base_delay_millis"`
	MaxDelayMillis  int     `yaml:"max_delay_millis"`
	BackoffFactor   float64 `yaml:"backoff_factor"`
}

// RateLimitConfig contains sliding-window rate limiter settings for
// outbound commands.
type RateLimitConfig struct {
	Capacity     int `yaml:"capacity"`
	WindowMillis int `yaml:"window_millis"`
}

// DeadLetterConfig contains dead-letter queue bounds.
type DeadLetterConfig struct {
	MaxEntries    int `yaml:"max_entries"`
	MaxAgeSeconds int `yaml:"max_age_seconds"`
}

// MQTTConfig contains MQTT broker connection settings for the status
// publisher. The publisher is optional; leave Enabled false to run without
// a broker.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains diagnostics HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: POOLLOGIC_SECTION_KEY
// For example: POOLLOGIC_HUB_HOST, POOLLOGIC_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Port:                        6681,
			ConnectTimeoutSeconds:       10,
			HeartbeatIntervalSeconds:    30,
			SilenceThresholdSeconds:     90,
			ReconnectCooldownSeconds:    5,
			MinReconnectIntervalSeconds: 10,
			MaxBufferBytes:              64 * 1024,
		},
		Engine: EngineConfig{
			TemperatureUnits:             "F",
			SupportVariableSpeedPumps:    true,
			DiscoveryPacingMillis:        150,
			DiscoveryTimeoutSeconds:      30,
			ParseErrorWarnThreshold:      5,
			ParseErrorReconnectThreshold: 20,
			ParseErrorWindowSeconds:      60,
		},
		Resilience: ResilienceConfig{
			Breaker: BreakerConfig{
				FailureThreshold:    5,
				SuccessThreshold:    2,
				ResetTimeoutSeconds: 30,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				BaseDelayMillis: 250,
				MaxDelayMillis:  5000,
				BackoffFactor:   2.0,
			},
			RateLimit: RateLimitConfig{
				Capacity:     20,
				WindowMillis: 1000,
			},
			DeadLetter: DeadLetterConfig{
				MaxEntries:    100,
				MaxAgeSeconds: 3600,
			},
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "poollogic-core",
			QoS:      1,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
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
// Environment variables follow the pattern: POOLLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("POOLLOGIC_HUB_HOST"); v != "" {
		cfg.Hub.Host = v
	}
	if v := os.Getenv("POOLLOGIC_HUB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Hub.Port = port
		}
	}
	if v := os.Getenv("POOLLOGIC_HUB_USERNAME"); v != "" {
		cfg.Hub.Username = v
	}
	if v := os.Getenv("POOLLOGIC_HUB_PASSWORD"); v != "" {
		cfg.Hub.Password = v
	}

	// MQTT
	if v := os.Getenv("POOLLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("POOLLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("POOLLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("POOLLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("POOLLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.Host == "" {
		errs = append(errs, "hub.host is required")
	}
	if c.Hub.Port < 1 || c.Hub.Port > 65535 {
		errs = append(errs, "hub.port must be between 1 and 65535")
	}
	if c.Hub.MaxBufferBytes < 1024 {
		errs = append(errs, "hub.max_buffer_bytes must be at least 1024")
	}
	if c.Hub.SilenceThresholdSeconds <= c.Hub.HeartbeatIntervalSeconds {
		errs = append(errs, "hub.silence_threshold_seconds must exceed hub.heartbeat_interval_seconds")
	}

	units := strings.ToUpper(c.Engine.TemperatureUnits)
	if units != "F" && units != "C" {
		errs = append(errs, "engine.temperature_units must be F or C")
	}
	if c.Engine.ParseErrorReconnectThreshold < c.Engine.ParseErrorWarnThreshold {
		errs = append(errs, "engine.parse_error_reconnect_threshold must be >= parse_error_warn_threshold")
	}

	if c.Resilience.Breaker.FailureThreshold < 1 {
		errs = append(errs, "resilience.breaker.failure_threshold must be at least 1")
	}
	if c.Resilience.Retry.MaxAttempts < 1 {
		errs = append(errs, "resilience.retry.max_attempts must be at least 1")
	}
	if c.Resilience.RateLimit.Capacity < 1 {
		errs = append(errs, "resilience.rate_limit.capacity must be at least 1")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Host == "" {
			errs = append(errs, "mqtt.host is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ConnectTimeout returns the hub connect timeout as a Duration.
func (c *HubConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the silence watchdog interval as a Duration.
func (c *HubConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// SilenceThreshold returns the forced-reconnect silence threshold as a Duration.
func (c *HubConfig) SilenceThreshold() time.Duration {
	return time.Duration(c.SilenceThresholdSeconds) * time.Second
}

// ReconnectCooldown returns the post-close reconnect cooldown as a Duration.
func (c *HubConfig) ReconnectCooldown() time.Duration {
	return time.Duration(c.ReconnectCooldownSeconds) * time.Second
}

// MinReconnectInterval returns the reconnect throttle interval as a Duration.
func (c *HubConfig) MinReconnectInterval() time.Duration {
	return time.Duration(c.MinReconnectIntervalSeconds) * time.Second
}

// DiscoveryPacing returns the inter-query pacing delay as a Duration.
func (c *EngineConfig) DiscoveryPacing() time.Duration {
	return time.Duration(c.DiscoveryPacingMillis) * time.Millisecond
}

// DiscoveryTimeout returns the per-cycle discovery timeout as a Duration.
func (c *EngineConfig) DiscoveryTimeout() time.Duration {
	return time.Duration(c.DiscoveryTimeoutSeconds) * time.Second
}

// ParseErrorWindow returns the parse-error rolling window as a Duration.
func (c *EngineConfig) ParseErrorWindow() time.Duration {
	return time.Duration(c.ParseErrorWindowSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
