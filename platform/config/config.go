// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SourceConfig provides settings for the external lead source.
type SourceConfig interface {
	GetSourceBaseURL() string
	GetSourceSpreadsheetID() string
	GetSourceSheetName() string
	GetSourceToken() string
	GetSourceMaxAttempts() int
	GetSourceBackoffBase() time.Duration
	GetSourceRateLimit() float64
}

// PollConfig provides settings for the reconciliation poll loop.
type PollConfig interface {
	GetPollInterval() time.Duration
	GetSchedulePolicyPath() string
}

// NotifierConfig provides settings for reminder dispatch.
type NotifierConfig interface {
	GetDeliveryMaxAttempts() int
	GetDeliveryConcurrency() int
	GetAdminChatIDs() []string
	GetAdminEmail() string
}

// TelegramConfig provides settings for the Telegram notification channel.
type TelegramConfig interface {
	GetTelegramAPIBaseURL() string
	GetTelegramBotToken() string
}

// EmailConfig provides settings for the SMTP notification channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SchedulerConfig provides settings for the asynq-backed report scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
}

// HTTPConfig provides settings for the admin HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// Config is the concrete application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr     string
	CORSAllowAll bool
	CORSOrigins  []string

	DatabaseURL string

	SourceBaseURL       string
	SourceSpreadsheetID string
	SourceSheetName     string
	SourceToken         string
	SourceMaxAttempts   int
	SourceBackoffBase   time.Duration
	SourceRateLimit     float64

	PollInterval       time.Duration
	SchedulePolicyPath string

	DeliveryMaxAttempts int
	DeliveryConcurrency int
	AdminChatIDs        []string
	AdminEmail          string

	TelegramAPIBaseURL string
	TelegramBotToken   string

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
}

// Load reads configuration from the environment (and .env when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),

		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll: strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SourceBaseURL:       getEnv("SOURCE_BASE_URL", "https://sheets.googleapis.com/v4"),
		SourceSpreadsheetID: getEnv("SOURCE_SPREADSHEET_ID", ""),
		SourceSheetName:     getEnv("SOURCE_SHEET_NAME", "Leads"),
		SourceToken:         getEnv("SOURCE_API_TOKEN", ""),
		SourceMaxAttempts:   getIntEnv("SOURCE_MAX_ATTEMPTS", 3),
		SourceBackoffBase:   mustDuration(getEnv("SOURCE_BACKOFF_BASE", "1s")),
		SourceRateLimit:     getFloatEnv("SOURCE_RATE_LIMIT", 1.0),

		PollInterval:       mustDuration(getEnv("POLL_INTERVAL", "120s")),
		SchedulePolicyPath: getEnv("SCHEDULE_POLICY_PATH", ""),

		DeliveryMaxAttempts: getIntEnv("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryConcurrency: getIntEnv("DELIVERY_CONCURRENCY", 4),
		AdminChatIDs:        splitCSV(getEnv("ADMIN_CHAT_IDS", "")),
		AdminEmail:          getEnv("ADMIN_EMAIL", ""),

		TelegramAPIBaseURL: getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),

		EmailEnabled:     strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "LeadFlow"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "reports"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SourceSpreadsheetID == "" {
		return nil, fmt.Errorf("SOURCE_SPREADSHEET_ID is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be a positive duration")
	}
	if cfg.SourceMaxAttempts < 1 {
		return nil, fmt.Errorf("SOURCE_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetSourceBaseURL() string            { return c.SourceBaseURL }
func (c *Config) GetSourceSpreadsheetID() string      { return c.SourceSpreadsheetID }
func (c *Config) GetSourceSheetName() string          { return c.SourceSheetName }
func (c *Config) GetSourceToken() string              { return c.SourceToken }
func (c *Config) GetSourceMaxAttempts() int           { return c.SourceMaxAttempts }
func (c *Config) GetSourceBackoffBase() time.Duration { return c.SourceBackoffBase }
func (c *Config) GetSourceRateLimit() float64         { return c.SourceRateLimit }

func (c *Config) GetPollInterval() time.Duration { return c.PollInterval }
func (c *Config) GetSchedulePolicyPath() string  { return c.SchedulePolicyPath }

func (c *Config) GetDeliveryMaxAttempts() int { return c.DeliveryMaxAttempts }
func (c *Config) GetDeliveryConcurrency() int { return c.DeliveryConcurrency }
func (c *Config) GetAdminChatIDs() []string   { return c.AdminChatIDs }
func (c *Config) GetAdminEmail() string       { return c.AdminEmail }

func (c *Config) GetTelegramAPIBaseURL() string { return c.TelegramAPIBaseURL }
func (c *Config) GetTelegramBotToken() string   { return c.TelegramBotToken }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
