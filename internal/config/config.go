// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration populated from environment variables.
type Config struct {
	// Core
	ServerPort int
	ServerEnv  string // "development" or "production"
	DataDir    string

	// Index
	CommitThreshold int

	// Message store: when DatabaseURL is set, messages go to PostgreSQL
	// instead of per-channel journals.
	DatabaseURL     string
	DatabaseMaxConn int
	DatabaseMinConn int

	// Valkey: when set, hub snapshots are cached.
	ValkeyURL   string
	HubCacheTTL time.Duration

	// JWT
	JWTSecret    string
	JWTAccessTTL time.Duration

	// Gateway
	GatewayMaxConnections     int
	GatewaySendBuffer         int
	GatewayIdentifyTimeout    time.Duration
	RateLimitWSCount          int
	RateLimitWSWindowSeconds  int
	RateLimitAPIRequests      int
	RateLimitAPIWindowSeconds int

	// API
	SearchResultLimit  int
	HistoryResultLimit int
	CORSAllowOrigins   string
}

// Load reads configuration from environment variables. It returns an error if
// any variable is set but cannot be parsed, or if required values are missing.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ServerPort: p.int("SERVER_PORT", 8080),
		ServerEnv:  envStr("SERVER_ENV", "production"),
		DataDir:    envStr("DATA_DIR", "data"),

		CommitThreshold: p.int("INDEX_COMMIT_THRESHOLD", 10),

		DatabaseURL:     envStr("DATABASE_URL", ""),
		DatabaseMaxConn: p.int("DATABASE_MAX_CONNS", 25),
		DatabaseMinConn: p.int("DATABASE_MIN_CONNS", 5),

		ValkeyURL:   envStr("VALKEY_URL", ""),
		HubCacheTTL: p.duration("HUB_CACHE_TTL", 5*time.Minute),

		JWTSecret:    envStr("JWT_SECRET", ""),
		JWTAccessTTL: p.duration("JWT_ACCESS_TTL", 15*time.Minute),

		GatewayMaxConnections:     p.int("GATEWAY_MAX_CONNECTIONS", 10000),
		GatewaySendBuffer:         p.int("GATEWAY_SEND_BUFFER", 256),
		GatewayIdentifyTimeout:    p.duration("GATEWAY_IDENTIFY_TIMEOUT", 30*time.Second),
		RateLimitWSCount:          p.int("RATE_LIMIT_WS_COUNT", 120),
		RateLimitWSWindowSeconds:  p.int("RATE_LIMIT_WS_WINDOW_SECONDS", 60),
		RateLimitAPIRequests:      p.int("RATE_LIMIT_API_REQUESTS", 60),
		RateLimitAPIWindowSeconds: p.int("RATE_LIMIT_API_WINDOW_SECONDS", 60),

		SearchResultLimit:  p.int("SEARCH_RESULT_LIMIT", 100),
		HistoryResultLimit: p.int("HISTORY_RESULT_LIMIT", 100),
		CORSAllowOrigins:   envStr("CORS_ALLOW_ORIGINS", "*"),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.ServerEnv == "development"
}

// DatabaseConfigured returns true when a PostgreSQL DSN is set.
func (c *Config) DatabaseConfigured() bool {
	return c.DatabaseURL != ""
}

// ValkeyConfigured returns true when a Valkey URL is set.
func (c *Config) ValkeyConfigured() bool {
	return c.ValkeyURL != ""
}

func (c *Config) validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters"))
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535"))
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR must not be empty"))
	}

	if c.CommitThreshold < 1 {
		errs = append(errs, fmt.Errorf("INDEX_COMMIT_THRESHOLD must be at least 1"))
	}

	if c.DatabaseConfigured() {
		if c.DatabaseMaxConn < 1 {
			errs = append(errs, fmt.Errorf("DATABASE_MAX_CONNS must be at least 1"))
		}
		if c.DatabaseMinConn < 0 {
			errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS must not be negative"))
		}
		if c.DatabaseMinConn > c.DatabaseMaxConn {
			errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS (%d) must not exceed DATABASE_MAX_CONNS (%d)", c.DatabaseMinConn, c.DatabaseMaxConn))
		}
	}

	if c.JWTAccessTTL < time.Second {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_TTL must be at least 1s"))
	}
	if c.HubCacheTTL < time.Second {
		errs = append(errs, fmt.Errorf("HUB_CACHE_TTL must be at least 1s"))
	}

	if c.GatewayMaxConnections < 1 {
		errs = append(errs, fmt.Errorf("GATEWAY_MAX_CONNECTIONS must be at least 1"))
	}
	if c.GatewaySendBuffer < 1 {
		errs = append(errs, fmt.Errorf("GATEWAY_SEND_BUFFER must be at least 1"))
	}
	if c.GatewayIdentifyTimeout < time.Second {
		errs = append(errs, fmt.Errorf("GATEWAY_IDENTIFY_TIMEOUT must be at least 1s"))
	}

	if c.RateLimitWSCount < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WS_COUNT must be at least 1"))
	}
	if c.RateLimitWSWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WS_WINDOW_SECONDS must be at least 1"))
	}
	if c.RateLimitAPIRequests < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_API_REQUESTS must be at least 1"))
	}
	if c.RateLimitAPIWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_API_WINDOW_SECONDS must be at least 1"))
	}

	if c.SearchResultLimit < 1 {
		errs = append(errs, fmt.Errorf("SEARCH_RESULT_LIMIT must be at least 1"))
	}
	if c.HistoryResultLimit < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_RESULT_LIMIT must be at least 1"))
	}

	return errors.Join(errs...)
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected duration like \"24h\" or \"30m\")", key, v))
		return fallback
	}
	return d
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
