// Package config defines the YAML configuration consumed by the hygrod
// service and validates it against the embedded CUE schema before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hygrod/hygrod/drivers/dht"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional log shipping to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures the Prometheus metrics endpoint.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// SensorConfig binds one single-wire sensor to a GPIO line.
type SensorConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	Pin      string `yaml:"pin"`
	Driver   string `yaml:"driver,omitempty"`
	Location string `yaml:"location,omitempty"`
	Scale    string `yaml:"scale,omitempty"`
}

// DisplayConfig wires an optional HD44780 character display in 4-bit mode.
type DisplayConfig struct {
	Enabled bool     `yaml:"enabled"`
	Driver  string   `yaml:"driver,omitempty"`
	RS      string   `yaml:"rs"`
	EN      string   `yaml:"en"`
	Data    []string `yaml:"data"`
	Cols    int      `yaml:"cols,omitempty"`
	Rows    int      `yaml:"rows,omitempty"`
	Sensor  string   `yaml:"sensor,omitempty"`
}

// AuthConfig captures username/password authentication for MQTT.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig allows TLS connections to the MQTT broker.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	ServerName         string `yaml:"server_name,omitempty"`
}

// DeadbandConfig suppresses publishes for insignificant value changes.
type DeadbandConfig struct {
	Absolute *float64 `yaml:"absolute,omitempty"`
	Percent  *float64 `yaml:"percent,omitempty"`
}

// HomeAssistantConfig enables MQTT discovery announcements for sensors.
type HomeAssistantConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DiscoveryPrefix string `yaml:"discovery_prefix,omitempty"`
	DeviceName      string `yaml:"device_name,omitempty"`
}

// MQTTConfig describes the broker connection and publish behaviour.
type MQTTConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Broker        string              `yaml:"broker"`
	ClientID      string              `yaml:"client_id,omitempty"`
	TopicPrefix   string              `yaml:"topic_prefix,omitempty"`
	QoS           byte                `yaml:"qos,omitempty"`
	Retain        bool                `yaml:"retain,omitempty"`
	KeepAlive     Duration            `yaml:"keep_alive,omitempty"`
	Timeout       Duration            `yaml:"timeout,omitempty"`
	Auth          *AuthConfig         `yaml:"auth,omitempty"`
	TLS           *TLSConfig          `yaml:"tls,omitempty"`
	Deadband      *DeadbandConfig     `yaml:"deadband,omitempty"`
	MinInterval   Duration            `yaml:"min_interval,omitempty"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant,omitempty"`
}

// AlertConfig defines a rule evaluated against every fresh reading. An alert
// fires when its rule turns true and stays active until the clear rule turns
// true, or until the rule itself turns false when no clear rule is set.
type AlertConfig struct {
	Name    string `yaml:"name"`
	Rule    string `yaml:"rule"`
	Clear   string `yaml:"clear,omitempty"`
	Message string `yaml:"message,omitempty"`
	Topic   string `yaml:"topic,omitempty"`
}

// LiveviewConfig exposes the HTTP state endpoint.
type LiveviewConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Config is the root configuration structure for the service.
type Config struct {
	Name          string          `yaml:"name,omitempty"`
	Interval      Duration        `yaml:"interval,omitempty"`
	StatsInterval Duration        `yaml:"stats_interval,omitempty"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Sensors       []SensorConfig  `yaml:"sensors"`
	Display       *DisplayConfig  `yaml:"display,omitempty"`
	MQTT          *MQTTConfig     `yaml:"mqtt,omitempty"`
	Alerts        []AlertConfig   `yaml:"alerts,omitempty"`
	Liveview      LiveviewConfig  `yaml:"liveview"`
	HotReload     bool            `yaml:"hot_reload,omitempty"`
}

const (
	defaultInterval      = 30 * time.Second
	defaultStatsInterval = 5 * time.Minute
	defaultTelemetryAddr = ":9090"
	defaultMetricsPath   = "/metrics"
	defaultLiveviewAddr  = ":8080"
)

// SampleInterval returns the configured acquisition interval.
func (c *Config) SampleInterval() time.Duration {
	if c == nil || c.Interval.Duration <= 0 {
		return defaultInterval
	}
	return c.Interval.Duration
}

// StatsPeriod returns the interval between system statistics publications.
func (c *Config) StatsPeriod() time.Duration {
	if c == nil || c.StatsInterval.Duration <= 0 {
		return defaultStatsInterval
	}
	return c.StatsInterval.Duration
}

// TelemetryListen resolves the metrics listen address.
func (c *Config) TelemetryListen() string {
	if c == nil || c.Telemetry.Listen == "" {
		return defaultTelemetryAddr
	}
	return c.Telemetry.Listen
}

// MetricsPath resolves the URL path the metrics handler is mounted on.
func (c *Config) MetricsPath() string {
	if c == nil || c.Telemetry.Path == "" {
		return defaultMetricsPath
	}
	return c.Telemetry.Path
}

// LiveviewListen resolves the liveview listen address.
func (c *Config) LiveviewListen() string {
	if c == nil || c.Liveview.Listen == "" {
		return defaultLiveviewAddr
	}
	return c.Liveview.Listen
}

func (c *Config) validate() error {
	if len(c.Sensors) == 0 {
		return errors.New("at least one sensor must be configured")
	}
	seen := make(map[string]struct{}, len(c.Sensors))
	for i, sensor := range c.Sensors {
		if sensor.Name == "" {
			return fmt.Errorf("sensor %d: name must not be empty", i)
		}
		if _, ok := seen[sensor.Name]; ok {
			return fmt.Errorf("sensor %q: duplicate name", sensor.Name)
		}
		seen[sensor.Name] = struct{}{}
		if sensor.Pin == "" {
			return fmt.Errorf("sensor %q: pin must not be empty", sensor.Name)
		}
		if _, err := dht.ParseModel(sensor.Model); err != nil {
			return fmt.Errorf("sensor %q: %w", sensor.Name, err)
		}
		if sensor.Scale != "" {
			if _, err := dht.ParseScale(sensor.Scale); err != nil {
				return fmt.Errorf("sensor %q: %w", sensor.Name, err)
			}
		}
	}
	if c.Interval.Duration > 0 && c.Interval.Duration < dht.MinSamplingPeriod {
		return fmt.Errorf("interval %s is below the minimum sampling period %s", c.Interval.Duration, dht.MinSamplingPeriod)
	}
	if c.Display != nil && c.Display.Enabled {
		if c.Display.RS == "" || c.Display.EN == "" {
			return errors.New("display: rs and en pins must be set")
		}
		if len(c.Display.Data) != 4 {
			return fmt.Errorf("display: exactly 4 data pins required, got %d", len(c.Display.Data))
		}
		if c.Display.Sensor != "" {
			if _, ok := seen[c.Display.Sensor]; !ok {
				return fmt.Errorf("display: unknown sensor %q", c.Display.Sensor)
			}
		}
	}
	if c.MQTT != nil && c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt: broker address is required")
	}
	alertNames := make(map[string]struct{}, len(c.Alerts))
	for i, alert := range c.Alerts {
		if alert.Name == "" {
			return fmt.Errorf("alert %d: name must not be empty", i)
		}
		if _, ok := alertNames[alert.Name]; ok {
			return fmt.Errorf("alert %q: duplicate name", alert.Name)
		}
		alertNames[alert.Name] = struct{}{}
		if alert.Rule == "" {
			return fmt.Errorf("alert %q: rule must not be empty", alert.Name)
		}
	}
	return nil
}

// Load reads, validates, and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a raw YAML configuration document.
func Parse(raw []byte) (*Config, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
