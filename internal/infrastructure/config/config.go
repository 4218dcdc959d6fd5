package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry modes.
const (
	// RegistryModeOpen auto-registers any device id on first ingest.
	RegistryModeOpen = "open"

	// RegistryModeClosed accepts only the devices declared under registry.devices.
	RegistryModeClosed = "closed"
)

// Config is the root configuration structure for Flora Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Registry  RegistryConfig  `yaml:"registry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// RegistryConfig selects how unknown device ids are treated.
type RegistryConfig struct {
	Mode    string         `yaml:"mode"`
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig pre-declares a device for the closed registry.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional; HTTP ingest works without it.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTopicsConfig controls which MQTT features are wired.
type MQTTTopicsConfig struct {
	// Ingest enables the flora/ingest/+ reading subscription.
	Ingest bool `yaml:"ingest"`
	// Commands routes accepted commands to flora/command/{device_id}.
	Commands bool `yaml:"commands"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DashboardConfig contains settings for the viewer-side aggregator.
// Durations are in seconds.
type DashboardConfig struct {
	ServerURL            string `yaml:"server_url"`
	GracePeriod          int    `yaml:"grace_period"`
	PollInterval         int    `yaml:"poll_interval"`
	RenderInterval       int    `yaml:"render_interval"`
	ReconnectDelay       int    `yaml:"reconnect_delay"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	RequestTimeout       int    `yaml:"request_timeout"`
	StaleAfter           int    `yaml:"stale_after"`
	LogCapacity          int    `yaml:"log_capacity"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern FLORA_SECTION_KEY, plus PORT for the
// HTTP listener.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without file or environment input.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Registry: RegistryConfig{
			Mode: RegistryModeOpen,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "flora-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Ingest:   true,
				Commands: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Dashboard: DashboardConfig{
			ServerURL:            "http://localhost:3000",
			GracePeriod:          3,
			PollInterval:         5,
			RenderInterval:       5,
			ReconnectDelay:       5,
			MaxReconnectAttempts: 5,
			RequestTimeout:       10,
			StaleAfter:           300,
			LogCapacity:          100,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// PORT is the conventional single knob for the listener.
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("FLORA_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("FLORA_REGISTRY_MODE"); v != "" {
		cfg.Registry.Mode = strings.ToLower(v)
	}

	// MQTT
	if v := os.Getenv("FLORA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("FLORA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLORA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FLORA_DASHBOARD_SERVER_URL"); v != "" {
		cfg.Dashboard.ServerURL = v
	}

	if v := os.Getenv("FLORA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	switch c.Registry.Mode {
	case RegistryModeOpen:
	case RegistryModeClosed:
		if len(c.Registry.Devices) == 0 {
			errs = append(errs, "registry.devices must not be empty in closed mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("registry.mode %q must be open or closed", c.Registry.Mode))
	}

	seen := make(map[string]struct{}, len(c.Registry.Devices))
	for i, d := range c.Registry.Devices {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			errs = append(errs, fmt.Sprintf("registry.devices[%d].id is required", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("registry.devices[%d].id %q is duplicated", i, id))
		}
		seen[id] = struct{}{}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Dashboard.MaxReconnectAttempts < 0 {
		errs = append(errs, "dashboard.max_reconnect_attempts must not be negative")
	}
	if c.Dashboard.LogCapacity < 1 {
		errs = append(errs, "dashboard.log_capacity must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}

	return nil
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

// seconds converts a configured seconds value to a Duration, falling back when unset.
func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// KeepaliveWindow is the longest a healthy WebSocket stays silent: one ping
// interval plus the pong wait. Clients use it as their read timeout.
func (w WebSocketConfig) KeepaliveWindow() time.Duration {
	return seconds(w.PingInterval, 30*time.Second) + seconds(w.PongTimeout, 10*time.Second)
}

// GracePeriodDuration returns how long the dashboard waits for the real-time channel.
func (d DashboardConfig) GracePeriodDuration() time.Duration {
	return seconds(d.GracePeriod, 3*time.Second)
}

// PollIntervalDuration returns the degraded-mode polling period.
func (d DashboardConfig) PollIntervalDuration() time.Duration {
	return seconds(d.PollInterval, 5*time.Second)
}

// RenderIntervalDuration returns the periodic re-render period.
func (d DashboardConfig) RenderIntervalDuration() time.Duration {
	return seconds(d.RenderInterval, 5*time.Second)
}

// ReconnectDelayDuration returns the fixed delay between reconnect attempts.
func (d DashboardConfig) ReconnectDelayDuration() time.Duration {
	return seconds(d.ReconnectDelay, 5*time.Second)
}

// RequestTimeoutDuration returns the timeout for snapshot fetches and commands.
func (d DashboardConfig) RequestTimeoutDuration() time.Duration {
	return seconds(d.RequestTimeout, 10*time.Second)
}

// StaleAfterDuration returns the silence period after which a device is stale.
func (d DashboardConfig) StaleAfterDuration() time.Duration {
	return seconds(d.StaleAfter, 300*time.Second)
}
