// Package config loads the YAML run configuration of the agent simulator.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultAPIPort      = 8080
	DefaultAPIHost      = "127.0.0.1"
	DefaultTraceTopic   = "decisiongraph/trace"
	DefaultSignalTopic  = "decisiongraph/signals"
	DefaultSQLitePath   = "trace.db"
)

// Storage drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type RunConfig struct {
	Version int `yaml:"version"`
	Sim     struct {
		TickInterval time.Duration `yaml:"tick_interval"`
		// MaxTicks bounds a batch run; zero runs until every agent finishes.
		MaxTicks int      `yaml:"max_ticks"`
		Seed     uint64   `yaml:"seed"`
		Agents   []string `yaml:"agents"`
	} `yaml:"sim"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	API struct {
		Enabled bool `yaml:"enabled"`
		// Host is the listen address. The server has no auth, so it defaults
		// to loopback.
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"api"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		URL         string `yaml:"url"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		TraceTopic  string `yaml:"trace_topic"`
		SignalTopic string `yaml:"signal_topic"`
	} `yaml:"mqtt"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		Postgres   struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Database string `yaml:"database"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"storage"`
}

// Default returns a configuration with every default applied.
func Default() *RunConfig {
	cfg := &RunConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *RunConfig) applyDefaults() {
	if c.Sim.TickInterval == 0 {
		c.Sim.TickInterval = DefaultTickInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.API.Host == "" {
		c.API.Host = DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "agentsim"
	}
	if c.MQTT.TraceTopic == "" {
		c.MQTT.TraceTopic = DefaultTraceTopic
	}
	if c.MQTT.SignalTopic == "" {
		c.MQTT.SignalTopic = DefaultSignalTopic
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverNone
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}
}

// Validate reports every invalid setting at once.
// APIAddr is the host:port the diagnostics server listens on.
func (c *RunConfig) APIAddr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

func (c *RunConfig) Validate() error {
	var errs []error
	if c.Sim.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("sim.tick_interval must not be negative: %s", c.Sim.TickInterval))
	}
	if c.Sim.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("sim.max_ticks must not be negative: %d", c.Sim.MaxTicks))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text: %q", c.Log.Format))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	switch c.Storage.Driver {
	case DriverNone, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be none, postgres or sqlite: %q", c.Storage.Driver))
	}
	seen := make(map[string]bool, len(c.Sim.Agents))
	for _, a := range c.Sim.Agents {
		if seen[a] {
			errs = append(errs, fmt.Errorf("sim.agents lists %q twice", a))
		}
		seen[a] = true
	}
	return errors.Join(errs...)
}

// ParseLevel maps a config level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return l, nil
}

// Parse decodes, defaults and validates a run configuration.
func Parse(b []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported run config version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Load(path string) (*RunConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
