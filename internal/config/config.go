// Package config defines the configuration for the satwallet backend.
// Configuration is loaded once at process startup and is immutable
// thereafter, following 12-Factor principles: OS environment first, with a
// .env file as a development convenience. Any missing required value or
// invalid format fails startup immediately.
package config

import (
	"time"

	"satwallet/internal/types"
)

// SecretString is an alias for types.SecretString, used for values that must
// never appear in logs or serialized config dumps.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Autopay   AutopayConfig
	PriceFeed PriceFeedConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AutopayConfig holds engine tunables.
type AutopayConfig struct {
	TickInterval time.Duration `envconfig:"AUTOPAY_TICK_INTERVAL" default:"60s"`
	CacheTTL     time.Duration `envconfig:"AUTOPAY_CACHE_TTL" default:"60s"`
}

// PriceFeedConfig holds price source settings.
type PriceFeedConfig struct {
	Endpoint        string        `envconfig:"PRICE_ENDPOINT" default:"https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"`
	UserAgent       string        `envconfig:"PRICE_USER_AGENT" default:"satwallet/1.0"`
	RefreshInterval time.Duration `envconfig:"PRICE_REFRESH_INTERVAL" default:"60s"`
	MaxAge          time.Duration `envconfig:"PRICE_MAX_AGE" default:"2m"`
}

// AuthConfig holds the single-user API credential. The token itself is never
// stored; only its bcrypt hash is configured.
type AuthConfig struct {
	APITokenHash SecretString `envconfig:"API_TOKEN_BCRYPT" validate:"required"`
}
