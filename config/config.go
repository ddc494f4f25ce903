package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Port        string
	Environment string
	BaseURL     string
	LogLevel    string
	PublicDir   string
	CORSOrigins []string
	SeedData    bool

	DatabaseDriver string
	DatabaseURL    string

	JWTSecret          string
	JWTExpiresIn       time.Duration
	JWTCookieExpiresIn time.Duration

	// Email Configuration
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	FromEmail          string
	FromName           string
	EmailRatePerMinute int

	// Redis is optional; caching and distributed rate limiting are disabled without it
	RedisURL string
	CacheTTL time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	// TrustedProxies may set X-Forwarded-For. Empty means the client
	// address is always the peer address.
	TrustedProxies []string
}

// Load reads config.env and .env (when present) and then the process environment.
// Variables already set in the environment win over file values.
func Load() *Config {
	_ = godotenv.Load("config.env")
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "3000"),
		Environment: getEnv("APP_ENV", EnvDevelopment),
		BaseURL:     getEnv("BASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PublicDir:   getEnv("PUBLIC_DIR", "public"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		SeedData:    getEnvBool("SEED_DATA", false),

		DatabaseDriver: getEnv("DB_DRIVER", "mysql"),
		DatabaseURL:    getEnv("DATABASE_URL", "user:password@tcp(localhost:3306)/natours?charset=utf8mb4&parseTime=True&loc=Local"),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-to-a-long-random-secret"),
		JWTExpiresIn:       getEnvDuration("JWT_EXPIRES_IN", 90*24*time.Hour),
		JWTCookieExpiresIn: time.Duration(getEnvInt("JWT_COOKIE_EXPIRES_IN", 90*24)) * time.Hour,

		SMTPHost:           getEnv("SMTP_HOST", "sandbox.smtp.mailtrap.io"),
		SMTPPort:           getEnvInt("SMTP_PORT", 2525),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		FromEmail:          getEnv("FROM_EMAIL", "noreply@natours.io"),
		FromName:           getEnv("FROM_NAME", "Natours"),
		EmailRatePerMinute: getEnvInt("EMAIL_RATE_PER_MINUTE", 30),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		TrustedProxies:  splitList(getEnv("TRUSTED_PROXIES", "")),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90m", "2160h") and a day suffix ("90d").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if strings.HasSuffix(value, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(value, "d")); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
