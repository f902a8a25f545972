// Package config loads and validates all runtime configuration for the
// bridge quote aggregator.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment
// variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example REDIS_URL becomes redis_url
// in YAML.
//
// Redis is required: the quote cache and the per-client rate limiter both
// need a shared, atomic-increment-capable store. ClickHouse is optional —
// when unset the security metadata enrichment step is skipped and every
// route reports hasAudit=false, hasExploit=false.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// Redis holds the connection URL backing the quote cache and the
	// per-client rate limiter.
	Redis RedisConfig

	// Cache controls the fresh/stale quote cache TTLs.
	Cache CacheConfig

	// RateLimit controls the per-client quotes-per-minute cap.
	RateLimit RateLimitConfig

	// ClickHouse holds the optional security metadata repository
	// connection. Zero value disables security enrichment.
	ClickHouse ClickHouseConfig

	// Adapters controls per-adapter HTTP behaviour (timeouts, retries,
	// testnet endpoints).
	Adapters AdapterConfig

	// GasPrice is the optional gas-price oracle API key. Empty uses the
	// oracle's unauthenticated, rate-limited tier.
	GasPrice ExternalAPIConfig

	// TokenPrice is the optional token-price oracle API key.
	TokenPrice ExternalAPIConfig

	// CircuitBreaker controls the thresholds guarding the optional
	// gas-price/token-price HTTP clients.
	CircuitBreaker CircuitBreakerConfig

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set to specific origins in prod.
	CORSOrigins []string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the quote cache TTLs.
type CacheConfig struct {
	// FreshTTL is how long a successful aggregation is served as a HIT.
	// Default: 15s.
	FreshTTL time.Duration
	// StaleTTL is how long a successful aggregation remains available as
	// a fallback when every adapter currently fails. Default: 300s.
	StaleTTL time.Duration
}

// RateLimitConfig controls the per-client and aggregate quotes-per-minute caps.
type RateLimitConfig struct {
	// QuotesPerMinute is the maximum GET /quotes calls per client per
	// 60s window. Default: 100.
	QuotesPerMinute int
	// GlobalPerMinute is the maximum GET /quotes calls across all
	// clients combined per 60s window, protecting the bridge-adapter
	// upstreams from aggregate load. Default: 2000. 0 disables it.
	GlobalPerMinute int
}

// ClickHouseConfig configures the security metadata repository
// connection. Addr empty disables the repository entirely.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// AdapterConfig controls shared bridge-adapter HTTP behaviour.
type AdapterConfig struct {
	// Timeout bounds a single adapter attempt. Default: 5s.
	Timeout time.Duration
	// Retries is the number of retry attempts after the first. Default: 2.
	Retries int
	// PerAdapterTimeout bounds the entire retry loop for one adapter
	// within one aggregation run. Default: 8s.
	PerAdapterTimeout time.Duration
}

// ExternalAPIConfig holds credentials for an optional read-only HTTP
// collaborator (gas price / token price oracles).
type ExternalAPIConfig struct {
	APIKey string
}

// CircuitBreakerConfig controls the gasprice/tokenprice circuit breakers.
type CircuitBreakerConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("QUOTE_FRESH_TTL", "15s")
	v.SetDefault("QUOTE_STALE_TTL", "300s")

	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("GLOBAL_RATE_LIMIT_PER_MINUTE", 2000)

	v.SetDefault("ADAPTER_TIMEOUT", "5s")
	v.SetDefault("ADAPTER_RETRIES", 2)
	v.SetDefault("ADAPTER_PER_TIMEOUT", "8s")

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			FreshTTL: v.GetDuration("QUOTE_FRESH_TTL"),
			StaleTTL: v.GetDuration("QUOTE_STALE_TTL"),
		},

		RateLimit: RateLimitConfig{
			QuotesPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
			GlobalPerMinute: v.GetInt("GLOBAL_RATE_LIMIT_PER_MINUTE"),
		},

		ClickHouse: ClickHouseConfig{
			Addr:     v.GetStringSlice("CLICKHOUSE_ADDR"),
			Database: v.GetString("CLICKHOUSE_DATABASE"),
			Username: v.GetString("CLICKHOUSE_USERNAME"),
			Password: v.GetString("CLICKHOUSE_PASSWORD"),
		},

		Adapters: AdapterConfig{
			Timeout:           v.GetDuration("ADAPTER_TIMEOUT"),
			Retries:           v.GetInt("ADAPTER_RETRIES"),
			PerAdapterTimeout: v.GetDuration("ADAPTER_PER_TIMEOUT"),
		},

		GasPrice:   ExternalAPIConfig{APIKey: v.GetString("ETHERSCAN_API_KEY")},
		TokenPrice: ExternalAPIConfig{APIKey: v.GetString("COINGECKO_API_KEY")},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("config: REDIS_URL is required (backs both the quote cache and the rate limiter)")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.Cache.FreshTTL <= 0 {
		return fmt.Errorf("config: QUOTE_FRESH_TTL must be a positive duration")
	}
	if c.Cache.StaleTTL <= c.Cache.FreshTTL {
		return fmt.Errorf("config: QUOTE_STALE_TTL must be greater than QUOTE_FRESH_TTL")
	}
	if c.RateLimit.QuotesPerMinute < 1 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must be ≥ 1, got %d", c.RateLimit.QuotesPerMinute)
	}
	if c.RateLimit.GlobalPerMinute < 0 {
		return fmt.Errorf("config: GLOBAL_RATE_LIMIT_PER_MINUTE must be ≥ 0, got %d", c.RateLimit.GlobalPerMinute)
	}
	if c.Adapters.Retries < 0 {
		return fmt.Errorf("config: ADAPTER_RETRIES must be ≥ 0, got %d", c.Adapters.Retries)
	}
	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
	}

	// ClickHouse is optional, but a half-specified block is almost
	// certainly a misconfiguration rather than an intentional "disabled".
	if len(c.ClickHouse.Addr) > 0 && c.ClickHouse.Database == "" {
		return fmt.Errorf("config: CLICKHOUSE_DATABASE is required when CLICKHOUSE_ADDR is set")
	}

	return nil
}

// SecurityEnabled reports whether enough ClickHouse configuration is
// present to open the security metadata repository.
func (c *Config) SecurityEnabled() bool {
	return len(c.ClickHouse.Addr) > 0
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
