package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Logging   LoggingConfig
	Gateway   GatewayConfig
	OpenAI    OpenAIConfig
	AutoReply AutoReplyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
	// RateLimit is the per-user request budget per minute on the management API
	RateLimit int
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration.
// An empty Addr disables Redis-backed idempotency claims.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	AccessSecret      string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// LoggingConfig holds structured logger configuration
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// GatewayConfig holds the mail gateway (EmailEngine) connection settings
type GatewayConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	// OAuth2 settings for Microsoft mailboxes, which cannot link with a password
	MicrosoftRedirectURL string
	MicrosoftProviderID  string
}

// OpenAIConfig holds completion API settings
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// AutoReplyConfig holds tuning for the auto-reply pipeline
type AutoReplyConfig struct {
	CallTimeout    time.Duration
	IdempotencyTTL time.Duration
	SummarySize    int
	DedupeRePrefix bool
}

// Drafting bounds. Replies use a low, narrow temperature range and
// summarize no more than the last few thread messages.
const (
	MinTemperature float32 = 0.6
	MaxTemperature float32 = 0.7
	MaxSummarySize         = 5
)

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimit:      getIntEnv("API_RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "replydesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
			AccessTokenExpiry: getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:            getEnv("JWT_ISSUER", "replydesk"),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			Output:    getEnv("LOG_OUTPUT", "stdout"),
			AddSource: getBoolEnv("LOG_ADD_SOURCE", false),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnv("EMAIL_ENGINE_BASE_URL", ""),
			AccessToken: getEnv("EMAIL_ENGINE_API_KEY", ""),
			Timeout:     getSecondsEnv("EMAIL_ENGINE_TIMEOUT", 30*time.Second),

			MicrosoftRedirectURL: getEnv("EMAIL_ENGINE_MICROSOFT_REDIRECT_URL", "http://localhost:3000/auth/callback"),
			MicrosoftProviderID:  getEnv("EMAIL_ENGINE_MICROSOFT_PROVIDER_ID", "microsoft"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:   getIntEnv("OPENAI_MAX_TOKENS", 220),
			Temperature: clampTemperature(getFloatEnv("OPENAI_TEMPERATURE", MinTemperature)),
		},
		AutoReply: AutoReplyConfig{
			CallTimeout:    getSecondsEnv("AUTO_REPLY_CALL_TIMEOUT", 20*time.Second),
			IdempotencyTTL: getDurationEnv("AUTO_REPLY_IDEMPOTENCY_TTL", 24*time.Hour),
			SummarySize:    clampSummarySize(getIntEnv("AUTO_REPLY_SUMMARY_SIZE", MaxSummarySize)),
			DedupeRePrefix: getBoolEnv("AUTO_REPLY_DEDUPE_RE_PREFIX", false),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// URL returns the PostgreSQL connection string in URL form, as golang-migrate expects
func (d *DatabaseConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Plain integers are read as minutes, anything else as a Go duration string.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getSecondsEnv is getDurationEnv for settings that are naturally expressed in seconds
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

// clampTemperature keeps t inside [MinTemperature, MaxTemperature]
func clampTemperature(t float32) float32 {
	if t < MinTemperature {
		return MinTemperature
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}

// clampSummarySize caps n at MaxSummarySize; non-positive values fall back to it
func clampSummarySize(n int) int {
	if n <= 0 || n > MaxSummarySize {
		return MaxSummarySize
	}
	return n
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
