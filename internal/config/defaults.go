package config

// DefaultConfig returns a Config with sensible defaults: a local SQLite
// file, a ten-minute callback TTL and a per-user limit of thirty
// redemptions per minute.
func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendSQLite,
		DatabasePath: "actiongate.db",
		RedisURL:     "redis://localhost:6379/0",
		Port:         8080,
		TTLSec:       600,
		ResultTTLSec: 600,
		RateLimit: RateLimitConfig{
			Limit:     30,
			WindowSec: 60,
		},
	}
}
