// Package config loads actiongate configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the conventional config file location.
const DefaultPath = ".actiongate.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ACTIONGATE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: ACTIONGATE_BACKEND -> backend, etc.
	if err := k.Load(env.Provider("ACTIONGATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "ACTIONGATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validBackends is the set of recognized backend values.
var validBackends = map[Backend]bool{
	BackendSQLite: true,
	BackendRedis:  true,
	BackendMemory: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if !validBackends[c.Backend] {
		return fmt.Errorf("invalid backend %q: must be one of sqlite, redis, memory", c.Backend)
	}

	if c.Backend == BackendSQLite && c.DatabasePath == "" {
		return fmt.Errorf("database_path is required for the sqlite backend")
	}
	if c.Backend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("redis_url is required for the redis backend")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if c.TTLSec < 1 {
		return fmt.Errorf("ttl_sec must be positive")
	}
	if c.ResultTTLSec < 0 {
		return fmt.Errorf("result_ttl_sec must be non-negative")
	}

	if c.RateLimit.Limit < 0 {
		return fmt.Errorf("rate_limit.limit must be non-negative")
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.WindowSec < 1 {
		return fmt.Errorf("rate_limit.window_sec must be positive when a limit is set")
	}

	return nil
}
