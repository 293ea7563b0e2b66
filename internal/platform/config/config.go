package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Config carries the deployment-provided settings for both binaries.
type Config struct {
	BotToken string

	// SuperAdminAccount and SuperAdminPhone identify the bootstrap
	// super-admin. The remaining SuperAdmin* fields seed their member record
	// when the phone matches nobody in the registry.
	SuperAdminAccount     int64
	SuperAdminPhone       string
	SuperAdminGivenName   string
	SuperAdminFamilyName  string
	SuperAdminBirthYear   int
	SuperAdminAffiliation string

	StorageBackend Backend
	DatabaseURL    string

	SessionBackend Backend
	RedisAddr      string
	RedisPassword  string

	APIAddr  string
	APIToken string

	WarningDays     int
	WarningInterval time.Duration
	SweepInterval   time.Duration
}

// LoadFromEnv reads the configuration from environment variables. Only
// BOT_TOKEN, SUPER_ADMIN_ID and SUPER_ADMIN_PHONE are mandatory; everything
// else has a local-friendly default.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		SuperAdminGivenName:   getenv("SUPER_ADMIN_GIVEN_NAME", "Super"),
		SuperAdminFamilyName:  getenv("SUPER_ADMIN_FAMILY_NAME", "Admin"),
		SuperAdminBirthYear:   1980,
		SuperAdminAffiliation: getenv("SUPER_ADMIN_AFFILIATION", "Library staff"),

		StorageBackend: Backend(getenv("STORAGE_BACKEND", string(BackendMemory))),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		SessionBackend: Backend(getenv("SESSION_BACKEND", string(BackendMemory))),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),

		APIAddr:  getenv("API_ADDR", ":8080"),
		APIToken: os.Getenv("API_TOKEN"),

		WarningDays:     3,
		WarningInterval: 24 * time.Hour,
		SweepInterval:   6 * time.Hour,
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("missing required env var: BOT_TOKEN")
	}
	rawID := os.Getenv("SUPER_ADMIN_ID")
	if rawID == "" {
		return Config{}, fmt.Errorf("missing required env var: SUPER_ADMIN_ID")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("SUPER_ADMIN_ID must be a chat id: %w", err)
	}
	cfg.SuperAdminAccount = id
	cfg.SuperAdminPhone = os.Getenv("SUPER_ADMIN_PHONE")
	if cfg.SuperAdminPhone == "" {
		return Config{}, fmt.Errorf("missing required env var: SUPER_ADMIN_PHONE")
	}

	switch cfg.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be memory or postgres, got %q", cfg.StorageBackend)
	}
	switch cfg.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("SESSION_BACKEND must be memory or redis, got %q", cfg.SessionBackend)
	}

	if v := os.Getenv("SUPER_ADMIN_BIRTH_YEAR"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("SUPER_ADMIN_BIRTH_YEAR must be a year: %w", err)
		}
		cfg.SuperAdminBirthYear = y
	}
	if v := os.Getenv("WARNING_DAYS"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 {
			return Config{}, fmt.Errorf("WARNING_DAYS must be a positive integer")
		}
		cfg.WarningDays = d
	}
	if v := os.Getenv("WARNING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("WARNING_INTERVAL must be a duration (e.g. 24h): %w", err)
		}
		cfg.WarningInterval = d
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SWEEP_INTERVAL must be a duration (e.g. 6h): %w", err)
		}
		cfg.SweepInterval = d
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
