// Package config provides the configuration file for spooltraced.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the spooltraced configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Lock     LockConfig     `yaml:"lock"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RedisConfig configures the lock-store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the durable occupation store.
type DatabaseConfig struct {
	// DSN is the SQLite data source for the occupation mirror.
	DSN string `yaml:"dsn"`
}

// LockConfig configures the occupation-lock manager. Durations are
// time.ParseDuration strings.
type LockConfig struct {
	KeyPrefix        string `yaml:"key_prefix"`
	SafetyTTL        string `yaml:"safety_ttl"`
	StaleAfter       string `yaml:"stale_after"`
	ReconcileTimeout string `yaml:"reconcile_timeout"`
	GuardedRelease   bool   `yaml:"guarded_release"`
	Tracing          bool   `yaml:"tracing"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Verbosity is the stdr verbosity level; 0 keeps routine
	// cleanup/reconcile detail quiet.
	Verbosity int `yaml:"verbosity"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen: ":9632",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			DSN: "spooltrace.db",
		},
		Lock: LockConfig{
			KeyPrefix:        "lock:",
			SafetyTTL:        "10s",
			StaleAfter:       "24h",
			ReconcileTimeout: "10s",
		},
	}
}

// Load reads the configuration from path, returning defaults when the file
// does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Durations parses the lock duration fields.
func (c *LockConfig) Durations() (safetyTTL, staleAfter, reconcileTimeout time.Duration, err error) {
	for _, f := range []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"safety_ttl", c.SafetyTTL, &safetyTTL},
		{"stale_after", c.StaleAfter, &staleAfter},
		{"reconcile_timeout", c.ReconcileTimeout, &reconcileTimeout},
	} {
		if f.value == "" {
			continue
		}
		*f.out, err = time.ParseDuration(f.value)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parse %s: %w", f.name, err)
		}
	}
	return safetyTTL, staleAfter, reconcileTimeout, nil
}
