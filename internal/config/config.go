package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from the environment
type Config struct {
	// Servers
	GRPCAddr string
	HTTPAddr string

	// PostgreSQL
	DBConnStr   string
	LockTimeout time.Duration
	TxTimeout   time.Duration

	// Redis. Empty URL selects the in-process cache.
	RedisURL string

	// Auth
	JWTSigningKey string

	// Transfer rules
	DailyLimitCacheTTL time.Duration
	DuplicateWindow    time.Duration
	Timezone           string

	// Logging
	LogLevel  string
	LogFormat string

	SeedAccounts bool
}

// Load reads an optional .env file and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		// .env is optional in every environment
		_ = godotenv.Load()
	}

	cfg := &Config{
		GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		HTTPAddr: getEnv("HTTP_ADDR", ":9090"),

		DBConnStr:   getEnv("DB_CONN_STR", ""),
		LockTimeout: getEnvAsDuration("LOCK_TIMEOUT", 5*time.Second),
		TxTimeout:   getEnvAsDuration("TX_TIMEOUT", 10*time.Second),

		RedisURL: getEnv("REDIS_URL", ""),

		JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),

		DailyLimitCacheTTL: getEnvAsDuration("DAILY_LIMIT_CACHE_TTL", time.Hour),
		DuplicateWindow:    getEnvAsDuration("DUPLICATE_WINDOW", 5*time.Minute),
		Timezone:           getEnv("TIMEZONE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		SeedAccounts: getEnvAsBool("SEED_ACCOUNTS", false),
	}

	if cfg.DBConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		cfg.DBConnStr = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnvAsInt("DB_PORT", 5432),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "fundsflow"),
			getEnv("DB_SSL_MODE", "disable"),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe default
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if c.TxTimeout < c.LockTimeout {
		return fmt.Errorf("TX_TIMEOUT must not be shorter than LOCK_TIMEOUT")
	}
	if c.DailyLimitCacheTTL <= 0 {
		return fmt.Errorf("DAILY_LIMIT_CACHE_TTL must be positive")
	}
	if c.DuplicateWindow <= 0 {
		return fmt.Errorf("DUPLICATE_WINDOW must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. Empty means the server's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
