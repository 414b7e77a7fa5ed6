package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (tokens are issued by the external identity provider)
	JWT JWTConfig

	// Redis configuration for the optimistic booking status cache
	Redis RedisConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Booking engine configuration
	Booking BookingConfig

	// Background job configuration
	Jobs JobsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" (lib/pq) or "pgx"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT validation configuration
type JWTConfig struct {
	Secret string
	Issuer string // optional; when set, tokens from other issuers are rejected
}

// RedisConfig holds Redis connection configuration.
// An empty Addr disables the server-side status cache.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	StatusCacheTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration for booking commits
type RateLimitConfig struct {
	CommitsPerMinute int
	Burst            int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds booking engine configuration
type BookingConfig struct {
	Timezone         string        // IANA zone used for "today" in the past-date check
	MaxCalendarDays  int           // widest date range accepted by calendar/reconcile
	ReconcileTimeout time.Duration // deadline applied to reconcile requests
}

// JobsConfig holds cron schedules for background jobs
type JobsConfig struct {
	LedgerAuditEnabled bool
	LedgerAuditCron    string        // seconds-precision cron spec
	AuditLogRetention  time.Duration // booking audit rows older than this are purged; 0 keeps them
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			StatusCacheTTL: time.Duration(getEnvAsInt("STATUS_CACHE_TTL", 86400)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			CommitsPerMinute: getEnvAsInt("BOOKING_COMMITS_PER_MINUTE", 10),
			Burst:            getEnvAsInt("BOOKING_COMMIT_BURST", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Booking: BookingConfig{
			Timezone:         getEnv("BOOKING_TIMEZONE", "UTC"),
			MaxCalendarDays:  getEnvAsInt("BOOKING_MAX_CALENDAR_DAYS", 62),
			ReconcileTimeout: time.Duration(getEnvAsInt("RECONCILE_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Jobs: JobsConfig{
			LedgerAuditEnabled: getEnvAsBool("LEDGER_AUDIT_ENABLED", true),
			LedgerAuditCron:    getEnv("LEDGER_AUDIT_CRON", "0 30 2 * * *"),
			AuditLogRetention:  time.Duration(getEnvAsInt("AUDIT_LOG_RETENTION_DAYS", 90)) * 24 * time.Hour,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	if c.Booking.MaxCalendarDays <= 0 {
		return fmt.Errorf("BOOKING_MAX_CALENDAR_DAYS must be positive")
	}

	if c.RateLimit.CommitsPerMinute <= 0 {
		return fmt.Errorf("BOOKING_COMMITS_PER_MINUTE must be positive")
	}

	return nil
}

// Location resolves the configured booking timezone
func (b BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
