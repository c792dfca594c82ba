// Package config loads service configuration from environment variables.
// Callers load .env via godotenv before calling Load; this package only reads
// the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Engine   EngineConfig
}

// ServiceConfig identifies the service in logs and published events.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig controls the health endpoint and shutdown behavior.
type ServerConfig struct {
	HealthPort      int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// NATSConfig holds messaging settings.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// EngineConfig holds the decision-engine tunables. Defaults match the values
// the approval rules were calibrated with; override with care.
type EngineConfig struct {
	MonthOverMonthTolerancePct float64       // max month-over-month delta for the fast path
	HistoryWindowMonths        int           // trailing window for patterns and classification
	BatchLimit                 int           // invoices per ProcessPending run
	BatchInterval              time.Duration // how often the server drains pending invoices
	ReclassifyInterval         time.Duration // how often providers are reclassified
	FuzzyMatchThreshold        float64       // minimum similarity for a line-item fuzzy match
	DefaultReviewerID          string        // fallback responsible when a group has none assigned
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-ap-autoapprove"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			HealthPort:      getEnvInt("HEALTH_PORT", 8085),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "ap_autoapprove"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
			HealthCheck: getEnvDuration("DB_HEALTHCHECK_PERIOD", time.Minute),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects: getEnvInt("NATS_MAX_RECONNECTS", -1),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Engine: EngineConfig{
			MonthOverMonthTolerancePct: getEnvFloat("ENGINE_MOM_TOLERANCE_PCT", 5.0),
			HistoryWindowMonths:        getEnvInt("ENGINE_HISTORY_MONTHS", 12),
			BatchLimit:                 getEnvInt("ENGINE_BATCH_LIMIT", 50),
			BatchInterval:              getEnvDuration("ENGINE_BATCH_INTERVAL", 5*time.Minute),
			ReclassifyInterval:         getEnvDuration("ENGINE_RECLASSIFY_INTERVAL", 24*time.Hour),
			FuzzyMatchThreshold:        getEnvFloat("ENGINE_FUZZY_THRESHOLD", 0.85),
			DefaultReviewerID:          getEnv("ENGINE_DEFAULT_REVIEWER", "ap-review-queue"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Engine.MonthOverMonthTolerancePct < 0 || c.Engine.MonthOverMonthTolerancePct > 100 {
		return fmt.Errorf("ENGINE_MOM_TOLERANCE_PCT must be between 0 and 100")
	}
	if c.Engine.FuzzyMatchThreshold < 0 || c.Engine.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("ENGINE_FUZZY_THRESHOLD must be between 0 and 1")
	}
	if c.Engine.BatchLimit <= 0 {
		return fmt.Errorf("ENGINE_BATCH_LIMIT must be positive")
	}
	return nil
}

// ── env helpers ───────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
