// Package config loads and validates the YAML service configuration.
// Validation failures are fatal at startup; the engine never sees an
// invalid target list.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pingit-io/pingit/internal/domain"
)

// Duration wraps time.Duration so YAML can carry values like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type TargetConfig struct {
	Name     string   `yaml:"name"`
	Host     string   `yaml:"host"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	Probe    string   `yaml:"probe"`
}

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Ping struct {
		Interval      Duration `yaml:"interval"`
		Timeout       Duration `yaml:"timeout"`
		Privileged    bool     `yaml:"privileged"`
		Overrun       string   `yaml:"overrun"` // "refire" (default) or "skip"
		DeliveryGrace Duration `yaml:"delivery_grace"`
	} `yaml:"ping"`

	Reporting struct {
		Interval uint64 `yaml:"interval"` // cycles per snapshot
	} `yaml:"reporting"`

	Storage struct {
		Driver        string   `yaml:"driver"` // sqlite | postgres | memory
		Path          string   `yaml:"path"`   // sqlite file
		DSN           string   `yaml:"dsn"`    // postgres
		QueueSize     int      `yaml:"queue_size"`
		BatchSize     int      `yaml:"batch_size"`
		FlushInterval Duration `yaml:"flush_interval"`
		RetryAttempts int      `yaml:"retry_attempts"`
		RetryBackoff  Duration `yaml:"retry_backoff"`
		ShutdownGrace Duration `yaml:"shutdown_grace"`
	} `yaml:"storage"`

	Logging struct {
		Dir     string `yaml:"dir"`
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`

	API struct {
		RateLimit int `yaml:"rate_limit"` // requests per minute per IP
	} `yaml:"api"`

	Targets []TargetConfig `yaml:"targets"`
}

// Load reads the config file, applies defaults and env overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":7030"
	}
	if c.Ping.Interval == 0 {
		c.Ping.Interval = Duration(60 * time.Second)
	}
	if c.Ping.Timeout == 0 {
		c.Ping.Timeout = Duration(5 * time.Second)
	}
	if c.Ping.Overrun == "" {
		c.Ping.Overrun = "refire"
	}
	if c.Ping.DeliveryGrace == 0 {
		c.Ping.DeliveryGrace = Duration(time.Second)
	}
	if c.Reporting.Interval == 0 {
		c.Reporting.Interval = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "pingit.db"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PINGIT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("config: no targets defined")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("config: target %d has no name", i)
		}
		if t.Host == "" {
			return fmt.Errorf("config: target %q has no host", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("config: duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Probe != "" && t.Probe != "icmp" && t.Probe != "tcp" {
			return fmt.Errorf("config: target %q has unknown probe mode %q", t.Name, t.Probe)
		}
	}
	if c.Ping.Overrun != "refire" && c.Ping.Overrun != "skip" {
		return fmt.Errorf("config: ping.overrun must be refire or skip, got %q", c.Ping.Overrun)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn required for postgres")
	}
	return nil
}

// DomainTargets converts the target list, filling per-target interval and
// timeout from the global ping defaults.
func (c *Config) DomainTargets() []domain.Target {
	out := make([]domain.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		interval := t.Interval
		if interval == 0 {
			interval = c.Ping.Interval
		}
		timeout := t.Timeout
		if timeout == 0 {
			timeout = c.Ping.Timeout
		}
		out = append(out, domain.Target{
			Name:     t.Name,
			Host:     t.Host,
			Interval: interval.Std(),
			Timeout:  timeout.Std(),
			Probe:    t.Probe,
		})
	}
	return out
}
