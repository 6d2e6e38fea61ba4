package config

// Backend identifies the persistence backend for callback state.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Config is the top-level actiongate configuration, corresponding to
// .actiongate.yml.
type Config struct {
	Backend      Backend         `yaml:"backend" koanf:"backend"`
	DatabasePath string          `yaml:"database_path" koanf:"database_path"`
	RedisURL     string          `yaml:"redis_url" koanf:"redis_url"`
	Port         int             `yaml:"port" koanf:"port"`
	TTLSec       int             `yaml:"ttl_sec" koanf:"ttl_sec"`
	ResultTTLSec int             `yaml:"result_ttl_sec" koanf:"result_ttl_sec"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" koanf:"rate_limit"`
	Slack        SlackConfig     `yaml:"slack" koanf:"slack"`
	DevMode      bool            `yaml:"dev_mode" koanf:"dev_mode"`
}

// RateLimitConfig bounds redemption attempts per user identity.
type RateLimitConfig struct {
	Limit     int `yaml:"limit" koanf:"limit"`
	WindowSec int `yaml:"window_sec" koanf:"window_sec"`
}

// SlackConfig holds credentials for patching Slack messages.
type SlackConfig struct {
	Token string `yaml:"token" koanf:"token"`
}
