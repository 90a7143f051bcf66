package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Portal API (the hospital backend the browser session belongs to)
	PortalAPIBaseURL string
	PortalAPITimeout time.Duration

	// Payment pages
	PageTokenSecret      string
	PageTokenTTL         time.Duration
	PageIdleTTL          time.Duration
	SubmitLockTTL        time.Duration
	PaymentMaxAttempts   int
	PaymentAttemptWindow time.Duration
	DefaultChargeAmount  float64
	ServiceReference     string

	// HTTP edge
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Optional backing services. Empty means in-process fallbacks.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PortalAPIBaseURL: strings.TrimRight(getEnv("PORTAL_API_BASE_URL", "http://localhost:8000/api"), "/"),
		PortalAPITimeout: getEnvAsDuration("PORTAL_API_TIMEOUT", 10*time.Second),

		PageTokenSecret:      getEnv("PAGE_TOKEN_SECRET", ""),
		PageTokenTTL:         getEnvAsDuration("PAGE_TOKEN_TTL", 2*time.Hour),
		PageIdleTTL:          getEnvAsDuration("PAGE_IDLE_TTL", 30*time.Minute),
		SubmitLockTTL:        getEnvAsDuration("SUBMIT_LOCK_TTL", 30*time.Second),
		PaymentMaxAttempts:   getEnvAsInt("PAYMENT_MAX_ATTEMPTS", 10),
		PaymentAttemptWindow: getEnvAsDuration("PAYMENT_ATTEMPT_WINDOW", time.Hour),
		DefaultChargeAmount:  getEnvAsFloat("DEFAULT_CHARGE_AMOUNT", 55.00),
		ServiceReference:     getEnv("SERVICE_REFERENCE", "SRV-001"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
	}
}

// IsProduction reports whether ENV names a production deployment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.PageTokenSecret == "" {
		errs = append(errs, errors.New("PAGE_TOKEN_SECRET is required"))
	} else if c.IsProduction() && len(c.PageTokenSecret) < 32 {
		errs = append(errs, errors.New("PAGE_TOKEN_SECRET must be at least 32 bytes in production"))
	}
	if c.PortalAPIBaseURL == "" {
		errs = append(errs, errors.New("PORTAL_API_BASE_URL is required"))
	}
	if c.PageIdleTTL <= 0 {
		errs = append(errs, errors.New("PAGE_IDLE_TTL must be positive"))
	}
	if c.DefaultChargeAmount <= 0 {
		errs = append(errs, errors.New("DEFAULT_CHARGE_AMOUNT must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
