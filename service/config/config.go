package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Redis configuration (token-metadata cache; optional)
	RedisAddr     string
	RedisPassword string
	MintMetaTTL   time.Duration

	// Helius configuration
	HeliusAPIKey  string
	HeliusAPIURL  string
	HeliusRPCURL  string
	HeliusTimeout time.Duration

	// Narrator (LLM) configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch refresh configuration
	DefaultRefreshInterval time.Duration
	MinRefreshInterval     time.Duration

	// HTTP rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// TrustProxyHeaders controls whether X-Forwarded-For is honored when
	// resolving the client IP for rate limiting. Enable only when the
	// service sits behind a load balancer that sets the header; when the
	// service is exposed directly, a client could spoof the header to get a
	// fresh rate-limit bucket per request.
	TrustProxyHeaders bool
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Redis configuration (empty address disables the metadata cache)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	mintMetaTTL, err := parseDuration("MINT_META_TTL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MintMetaTTL = mintMetaTTL
	}

	// Helius configuration
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	if cfg.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("HELIUS_API_KEY is required"))
	}
	cfg.HeliusAPIURL = getEnvOrDefault("HELIUS_API_URL", "https://api.helius.xyz")
	cfg.HeliusRPCURL = getEnvOrDefault("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com")
	heliusTimeout, err := parseDuration("HELIUS_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HeliusTimeout = heliusTimeout
	}

	// Narrator configuration
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
	}
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "vizor-wallet-refresh")

	// Watch refresh configuration
	defaultInterval, err := parseDuration("DEFAULT_REFRESH_INTERVAL", "5m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultRefreshInterval = defaultInterval
	}

	minInterval, err := parseDuration("MIN_REFRESH_INTERVAL", "1m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinRefreshInterval = minInterval
	}

	if cfg.MinRefreshInterval > cfg.DefaultRefreshInterval {
		errs = append(errs, fmt.Errorf("MIN_REFRESH_INTERVAL (%v) cannot be greater than DEFAULT_REFRESH_INTERVAL (%v)",
			cfg.MinRefreshInterval, cfg.DefaultRefreshInterval))
	}

	// Rate limiting
	rps, err := parseFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateLimitRPS = rps
	}
	burst, err := parseInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateLimitBurst = burst
	}

	trustProxy, err := parseBool("TRUST_PROXY_HEADERS", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TrustProxyHeaders = trustProxy
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("HeliusAPIKey is required"))
	}

	if c.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OpenAIAPIKey is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.MinRefreshInterval > c.DefaultRefreshInterval {
		errs = append(errs, fmt.Errorf("MinRefreshInterval cannot be greater than DefaultRefreshInterval"))
	}

	if c.DefaultRefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("DefaultRefreshInterval must be at least 1 second"))
	}

	if c.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("RateLimitRPS must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
