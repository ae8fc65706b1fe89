// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	CoursesDir      string
	ValidatorURL    string
	RelayerURL      string
	ContractAddress string
	Timeout         TimeoutConfig
	Retry           RetryConfig
}

// TimeoutConfig groups operation timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Validation  time.Duration
	Mint        time.Duration
}

// RetryConfig groups database retry tuning.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/chaincademy.db"),
		CoursesDir:      getEnv("COURSES_DIR", "./courses"),
		ValidatorURL:    getEnv("VALIDATOR_URL", ""),
		RelayerURL:      getEnv("RELAYER_URL", ""),
		ContractAddress: getEnv("CERTIFICATE_CONTRACT", ""),
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Validation:  getEnvDuration("VALIDATION_TIMEOUT", 60*time.Second),
			Mint:        getEnvDuration("MINT_TIMEOUT", 3*time.Minute),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.CoursesDir == "" {
		return fmt.Errorf("COURSES_DIR cannot be empty")
	}
	if c.RelayerURL != "" && c.ContractAddress == "" {
		return fmt.Errorf("CERTIFICATE_CONTRACT must be set when RELAYER_URL is set")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
