// Package config provides environment-based configuration management
// Values come from the process environment, optionally seeded from a .env file
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database connection parameters for the exchange audit log
// An empty Host disables the audit log
type DBConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	Retention time.Duration
}

// RedisConfig holds Redis connection parameters for the token store
// An empty Addr falls back to an in-memory token store
type RedisConfig struct {
	Addr      string // Format: host:port
	Namespace string
	TokenTTL  time.Duration
}

// BackendConfig describes the chat backend REST API
type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// WebhookConfig describes the default agent webhook
type WebhookConfig struct {
	URL     string // used when the agent has no webhook_url
	Timeout time.Duration
}

// ChatConfig holds per-visit behavior
type ChatConfig struct {
	CollectedDataMode string // "append" or "upsert"
	VisitIdleTTL      time.Duration
	ReaperInterval    time.Duration
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Port           int
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string // websocket origins; empty allows all
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Config aggregates all configuration sections
type Config struct {
	DB      DBConfig
	Redis   RedisConfig
	Backend BackendConfig
	Webhook WebhookConfig
	Chat    ChatConfig
	App     AppConfig
	Log     LogConfig
}

// LoadConfig reads configuration from environment variables
// A .env file in the working directory is loaded first when present
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the current environment only
func FromEnv() (*Config, error) {
	cfg := &Config{}

	// Backend API
	cfg.Backend.BaseURL = strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8000"), "/")
	cfg.Backend.Timeout = getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second)
	cfg.Backend.MaxRetries = getEnvAsInt("BACKEND_MAX_RETRIES", 3)

	// Agent webhook
	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Webhook.Timeout = getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second)

	// Chat visits
	cfg.Chat.CollectedDataMode = strings.ToLower(getEnv("COLLECTED_DATA_MODE", "append"))
	cfg.Chat.VisitIdleTTL = getEnvAsDuration("VISIT_IDLE_TTL", 30*time.Minute)
	cfg.Chat.ReaperInterval = getEnvAsDuration("VISIT_REAPER_INTERVAL", time.Minute)

	// Database (optional)
	cfg.DB.Host = getEnv("DB_HOST", "")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 3306)
	cfg.DB.User = getEnv("DB_USER", "root")
	cfg.DB.Password = getEnv("DB_PASS", "")
	cfg.DB.Database = getEnv("DB_NAME", "intake_chat")
	cfg.DB.Retention = getEnvAsDuration("EXCHANGE_LOG_RETENTION", 7*24*time.Hour)

	// Redis (optional)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Namespace = getEnv("REDIS_TOKEN_NAMESPACE", "default")
	cfg.Redis.TokenTTL = getEnvAsDuration("TOKEN_TTL", 0)

	// Application
	cfg.App.Port = getEnvAsInt("APP_PORT", 8080)
	cfg.App.RateLimitRPS = getEnvAsFloat("RATE_LIMIT_RPS", 5)
	cfg.App.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", 10)
	cfg.App.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS")

	// Logging
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL environment variable is required")
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	switch c.Chat.CollectedDataMode {
	case "append", "upsert":
	default:
		return fmt.Errorf("COLLECTED_DATA_MODE must be append or upsert, got %q", c.Chat.CollectedDataMode)
	}
	if c.Chat.VisitIdleTTL <= 0 || c.Chat.ReaperInterval <= 0 {
		return fmt.Errorf("VISIT_IDLE_TTL and VISIT_REAPER_INTERVAL must be positive")
	}
	if c.DB.Host != "" && c.DB.Password == "" {
		return fmt.Errorf("DB_PASS environment variable is required when DB_HOST is set")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	return nil
}

// AuditLogEnabled reports whether the MariaDB exchange log is configured
func (c *Config) AuditLogEnabled() bool {
	return c.DB.Host != ""
}

// GetDSN returns MariaDB connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// getEnv reads environment variable with fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads environment variable as integer with fallback default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloat reads environment variable as float with fallback default
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or plain seconds ("30")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
