// Package config provides configuration management for msgdash.
//
// Configuration is loaded once at startup and remains immutable during
// runtime for thread-safety.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. External .env file in the working directory
//  3. Embedded .env file (fallback, included in binary)
//  4. Hard-coded defaults (lowest priority)
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// embeddedEnv contains the .env file embedded at build time.
//
// The embedded file only carries template values; deployments override them
// through the environment.
//
//go:embed .env
var embeddedEnv string

// Config holds all application configuration.
type Config struct {
	// Backend API
	APIBaseURL   string        // Root of the dashboard backend API
	HTTPTimeout  time.Duration // HTTP client timeout
	HTTPMaxConns int           // Maximum HTTP connections in pool

	// Processing job polling
	PollInterval  time.Duration // Delay between status reads
	PollTimeout   time.Duration // Give up polling after this long (0 = never)
	PollImmediate bool          // Read the status once before the first delay

	// Page sizes
	CustomersPageSize    int
	TransactionsPageSize int
	MessagesLimit        int    // Drill-down list size (0 = backend default)
	MessagesEndpoint     string // /messages_demo or /messages

	// Upload format
	UploadFormat string // "json" or "csv"
	CSVDelimiter string
	CSVHasHeader bool

	// Status server and background refresh
	StatusPort      string
	RefreshSchedule string // Standard cron spec, empty disables
	JobHistoryFile  string // CSV log of finished jobs, empty disables

	// Display
	Locale         string
	CurrencySymbol string

	// Telegram configuration (optional)
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
	// Debug mode - Telegram calls are logged instead of sent
	DebugMode bool
}

// LoadConfig loads configuration from environment variables with defaults.
//
// Loading process:
//  1. Parse embedded .env file and set as fallback environment variables
//  2. Try to load external .env file (overrides embedded values)
//  3. Read environment variables, applying defaults for missing values
//  4. Validate the result
func LoadConfig() (*Config, error) {
	// Step 1: external .env first so it wins over the embedded template
	_ = godotenv.Load()

	// Step 2: embedded .env fills whatever is still unset
	if envMap, err := godotenv.Unmarshal(embeddedEnv); err == nil {
		for k, v := range envMap {
			if _, set := os.LookupEnv(k); !set {
				os.Setenv(k, v)
			}
		}
	} else {
		logrus.WithError(err).Warn("⚠️  Embedded .env could not be parsed")
	}

	// Step 3: build config from environment with defaults
	cfg := &Config{
		APIBaseURL:   getEnvOrDefault("API_BASE_URL", "http://localhost:8000/api"),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		HTTPMaxConns: getEnvInt("HTTP_MAX_CONNS", 100),

		PollInterval:  getEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollTimeout:   getEnvDuration("POLL_TIMEOUT", 0),
		PollImmediate: getEnvBool("POLL_IMMEDIATE", false),

		CustomersPageSize:    getEnvInt("CUSTOMERS_PAGE_SIZE", 10),
		TransactionsPageSize: getEnvInt("TRANSACTIONS_PAGE_SIZE", 10),
		MessagesLimit:        getEnvInt("MESSAGES_LIMIT", 10),
		MessagesEndpoint:     getEnvOrDefault("MESSAGES_ENDPOINT", "/messages_demo"),

		UploadFormat: strings.ToLower(getEnvOrDefault("UPLOAD_FORMAT", "json")),
		CSVDelimiter: getEnvOrDefault("CSV_DELIMITER", ","),
		CSVHasHeader: getEnvBool("CSV_HAS_HEADER", true),

		StatusPort:      getEnvOrDefault("STATUS_PORT", "8080"),
		RefreshSchedule: os.Getenv("REFRESH_SCHEDULE"),
		JobHistoryFile:  os.Getenv("JOB_HISTORY_FILE"),

		Locale:         getEnvOrDefault("LOCALE", "en-IN"),
		CurrencySymbol: getEnvOrDefault("CURRENCY_SYMBOL", "₹"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		DebugMode: getEnvBool("DEBUG_MODE", false),
	}

	// Step 4: validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that values are present and sensible.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("POLL_TIMEOUT cannot be negative, got %v", c.PollTimeout)
	}
	if c.CustomersPageSize < 1 {
		return fmt.Errorf("CUSTOMERS_PAGE_SIZE must be at least 1, got %d", c.CustomersPageSize)
	}
	if c.TransactionsPageSize < 1 {
		return fmt.Errorf("TRANSACTIONS_PAGE_SIZE must be at least 1, got %d", c.TransactionsPageSize)
	}
	if c.MessagesLimit < 0 {
		return fmt.Errorf("MESSAGES_LIMIT cannot be negative, got %d", c.MessagesLimit)
	}
	if c.HTTPMaxConns < 1 {
		return fmt.Errorf("HTTP_MAX_CONNS must be at least 1, got %d", c.HTTPMaxConns)
	}
	if !strings.HasPrefix(c.MessagesEndpoint, "/") {
		return fmt.Errorf("MESSAGES_ENDPOINT must start with '/', got %q", c.MessagesEndpoint)
	}

	switch c.UploadFormat {
	case "json", "csv":
	default:
		return fmt.Errorf("UPLOAD_FORMAT must be json or csv, got %q", c.UploadFormat)
	}
	if c.CSVDelimiter == "" {
		return fmt.Errorf("CSV_DELIMITER cannot be empty")
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
		}
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("LOCALE %q: %w", c.Locale, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Helper functions for environment variable parsing

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an integer or a default if not set/invalid
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a bool or a default if not set/invalid
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default if not set/invalid.
//
// Accepts standard Go duration strings like "5s", "10m", "1h30m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
