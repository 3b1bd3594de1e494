// Package config builds runtime configuration from the environment so main
// stays lean. A .env file is honored in development when present.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string `env:"PEOPLEFINDER_ADDR,default=:8080"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY,default=dev-secret-key-change-in-production"`

	HTTP     HTTPConfig
	Auth     AuthConfig
	Upstream UpstreamConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Credits  CreditsConfig
	Session  SessionConfig
}

// HTTPConfig bounds server-side request handling. Handlers carry their own
// per-route timeouts; these are the outer transport limits.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT,default=5s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT,default=60s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT,default=120s"`
}

// AuthConfig optionally seeds a first account so a fresh deployment is
// usable before any user management tooling exists.
type AuthConfig struct {
	BootstrapUsername string `env:"AUTH_BOOTSTRAP_USERNAME,default="`
	BootstrapPassword string `env:"AUTH_BOOTSTRAP_PASSWORD,default="`
}

// UpstreamConfig points at the external people-search provider.
type UpstreamConfig struct {
	BaseURL string        `env:"UPSTREAM_BASE_URL,default=https://api.people-search.example"`
	Token   string        `env:"UPSTREAM_API_TOKEN,default="`
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT,default=10s"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL,default="`
	PoolSize     int           `env:"REDIS_POOL_SIZE,default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS,default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT,default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT,default=3s"`
}

type PostgresConfig struct {
	URL string `env:"DATABASE_URL,default="`
}

// CreditsConfig bounds metered usage of the paid upstream.
type CreditsConfig struct {
	Limit      int `env:"CREDITS_LIMIT,default=1000"`
	SearchCost int `env:"SEARCH_COST,default=1"`
}

// SessionConfig governs persisted search-session snapshots.
type SessionConfig struct {
	TTL time.Duration `env:"SESSION_STATE_TTL,default=24h"`
}

// Load reads configuration from the environment. Missing optional backends
// (redis, postgres) leave their URLs empty and callers fall back to memory.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
