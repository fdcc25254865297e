package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Discovery       DiscoveryConfig   `yaml:"discovery"`
	Device          DeviceConfig      `yaml:"device"`
	Patterns        PatternsConfig    `yaml:"patterns"`
	HomeKit         HomeKitConfig     `yaml:"homekit"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DiscoveryConfig controls the one-shot mDNS scan run at startup
type DiscoveryConfig struct {
	Backend          string   `yaml:"backend"` // "mdns" or "zeroconf"
	Service          string   `yaml:"service"`
	Domain           string   `yaml:"domain"`
	Filter           string   `yaml:"filter"` // Substring an instance name must contain
	Window           Duration `yaml:"window"`
	ProbeTimeout     Duration `yaml:"probe_timeout"`
	ProbeConcurrency int      `yaml:"probe_concurrency"`
	Dedupe           bool     `yaml:"dedupe"` // Collapse repeated announcements of the same instance name
}

// DeviceConfig contains per-strip HTTP settings
type DeviceConfig struct {
	Timeout      Duration `yaml:"timeout"`        // Bound on every remote call
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // 0 = unlimited
	QueueSize    int      `yaml:"queue_size"`     // Pending mutating operations per device
}

// PatternsConfig describes the pattern table and which patterns get a switch
type PatternsConfig struct {
	Table  map[string]int `yaml:"table"`
	Active []string       `yaml:"active"`
}

// HomeKitConfig contains bridge settings for the HAP server
type HomeKitConfig struct {
	Name         string `yaml:"name"`
	Pin          string `yaml:"pin"`
	Addr         string `yaml:"addr"`
	StoragePath  string `yaml:"storage_path"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path             string   `yaml:"path"`
	HistoryRetention Duration `yaml:"history_retention"` // How long event history is kept
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns host with default
func (c *HealthcheckConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// GetPort returns port with default
func (c *HealthcheckConfig) GetPort() int {
	if c.Port == 0 {
		return 9090
	}
	return c.Port
}

// DefaultPatternTable is the device-side pattern index table.
// The firmware knows more patterns than are listed here.
func DefaultPatternTable() map[string]int {
	return map[string]int{
		"Solid":    0,
		"Breath":   1,
		"RainbowB": 2,
		"Twinkles": 5,
		"Fire":     6,
		"Water":    7,
		"Rainbow":  8,
		"Sinelon":  11,
	}
}

// DefaultActivePatterns lists the patterns exposed as switches by default
func DefaultActivePatterns() []string {
	return []string{"Breath", "RainbowB", "Fire", "Water", "Sinelon", "Twinkles", "Rainbow"}
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Default returns a configuration with every default applied.
// Used when no config file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./stripd.sqlite"
	}
	if cfg.Database.HistoryRetention == 0 {
		cfg.Database.HistoryRetention = Duration(7 * 24 * time.Hour)
	}

	// Discovery defaults
	if cfg.Discovery.Backend == "" {
		cfg.Discovery.Backend = "mdns"
	}
	if cfg.Discovery.Service == "" {
		cfg.Discovery.Service = "_http._tcp"
	}
	if cfg.Discovery.Domain == "" {
		cfg.Discovery.Domain = "local"
	}
	if cfg.Discovery.Filter == "" {
		cfg.Discovery.Filter = "led-strip"
	}
	if cfg.Discovery.Window == 0 {
		cfg.Discovery.Window = Duration(5 * time.Second)
	}
	if cfg.Discovery.ProbeTimeout == 0 {
		cfg.Discovery.ProbeTimeout = Duration(5 * time.Second)
	}
	if cfg.Discovery.ProbeConcurrency <= 0 {
		cfg.Discovery.ProbeConcurrency = 4
	}

	// Device defaults
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(5 * time.Second)
	}
	if cfg.Device.QueueSize <= 0 {
		cfg.Device.QueueSize = 16
	}
	// RateLimitRPS defaults to 0 (unlimited), no need to set

	// Pattern defaults
	if len(cfg.Patterns.Table) == 0 {
		cfg.Patterns.Table = DefaultPatternTable()
	}
	if len(cfg.Patterns.Active) == 0 {
		cfg.Patterns.Active = DefaultActivePatterns()
	}

	// HomeKit defaults
	if cfg.HomeKit.Name == "" {
		cfg.HomeKit.Name = "LED Strip Bridge"
	}
	if cfg.HomeKit.Pin == "" {
		cfg.HomeKit.Pin = "00102003"
	}
	if cfg.HomeKit.StoragePath == "" {
		cfg.HomeKit.StoragePath = "./hap"
	}
	if cfg.HomeKit.Manufacturer == "" {
		cfg.HomeKit.Manufacturer = "harmon"
	}
	if cfg.HomeKit.Model == "" {
		cfg.HomeKit.Model = "light-strip"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	switch c.Discovery.Backend {
	case "mdns", "zeroconf":
	default:
		return fmt.Errorf("discovery.backend: unknown backend %q", c.Discovery.Backend)
	}
	if len(c.HomeKit.Pin) != 8 {
		return fmt.Errorf("homekit.pin: must be 8 digits")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
