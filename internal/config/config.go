// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Game data
	GameDataPath string // Optional JSON file overriding the built-in balance tables

	// Scheduler sweep cadences
	MissileSweepInterval time.Duration
	MissionSweepInterval time.Duration
	VoteSweepInterval    time.Duration
	BatterySweepInterval time.Duration

	// Tracing
	OTLPEndpoint string

	// Security
	AdminSecret  string // Admin API secret for emergency intervention endpoints
	RateLimitRPS int
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultRateLimit    = 100
	DefaultMissileSweep = 30 * time.Second
	DefaultMissionSweep = 30 * time.Second
	DefaultVoteSweep    = 60 * time.Second
	DefaultBatterySweep = 60 * time.Second
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GameDataPath:         os.Getenv("GAMEDATA_PATH"),
		MissileSweepInterval: getEnvDuration("MISSILE_SWEEP_INTERVAL", DefaultMissileSweep),
		MissionSweepInterval: getEnvDuration("MISSION_SWEEP_INTERVAL", DefaultMissionSweep),
		VoteSweepInterval:    getEnvDuration("VOTE_SWEEP_INTERVAL", DefaultVoteSweep),
		BatterySweepInterval: getEnvDuration("BATTERY_SWEEP_INTERVAL", DefaultBatterySweep),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:         int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.MissileSweepInterval <= 0 || c.MissionSweepInterval <= 0 ||
		c.VoteSweepInterval <= 0 || c.BatterySweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
