package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	PubSub   PubSubConfig
	Logging  LoggingConfig
	Sync     SyncConfig
	Fetcher  FetcherConfig
	Notifier NotifierConfig
	Metrics  MetricsConfig
}

// SyncConfig holds sync engine and scheduler configuration
type SyncConfig struct {
	Concurrency           int           `mapstructure:"concurrency"`
	FetchWindowPastDays   int           `mapstructure:"fetch_window_past_days"`
	FetchWindowFutureDays int           `mapstructure:"fetch_window_future_days"`
	DefaultListingHours   float64       `mapstructure:"default_listing_hours"`
	DefaultCheckoutTime   string        `mapstructure:"default_checkout_time"`
	RunBudget             time.Duration `mapstructure:"run_budget"`

	// Periodic full syncs
	ScheduleEnabled  bool          `mapstructure:"schedule_enabled"`
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`

	// Reactive syncs from database notifications
	ListenerEnabled  bool          `mapstructure:"listener_enabled"`
	ListenerDebounce time.Duration `mapstructure:"listener_debounce"`
}

// FetcherConfig holds calendar feed fetcher configuration
type FetcherConfig struct {
	TimeoutSeconds int
	UserAgent      string
}

// NotifierConfig holds change notification configuration
type NotifierConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `mapstructure:"port"`
	Environment         string   `mapstructure:"environment"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int      `mapstructure:"idle_timeout_seconds"`
	MaxHeaderBytes      int      `mapstructure:"max_header_bytes"`
	CorsAllowedOrigins  []string `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PubSubConfig holds Cloud Pub/Sub configuration (simplified for fan-out architecture)
type PubSubConfig struct {
	ProjectID              string `mapstructure:"project_id"`
	BookingEventsTopic     string `mapstructure:"booking_events_topic"`
	EmulatorHost           string `mapstructure:"emulator_host"`
	CredentialsFile        string `mapstructure:"credentials_file"`
	MaxConcurrentHandlers  int    `mapstructure:"max_concurrent_handlers"`
	MaxOutstandingMessages int    `mapstructure:"max_outstanding_messages"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:                getIntEnv("PORT", 8080),
			Environment:         getEnv("ENVIRONMENT", "development"),
			ReadTimeoutSeconds:  getIntEnv("SERVER_READ_TIMEOUT_SECONDS", 30),
			WriteTimeoutSeconds: getIntEnv("SERVER_WRITE_TIMEOUT_SECONDS", 30),
			IdleTimeoutSeconds:  getIntEnv("SERVER_IDLE_TIMEOUT_SECONDS", 120),
			MaxHeaderBytes:      getIntEnv("SERVER_MAX_HEADER_BYTES", 1<<20), // 1MB default
			CorsAllowedOrigins:  getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DATABASE_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		PubSub: PubSubConfig{
			ProjectID:              getEnv("GOOGLE_CLOUD_PROJECT", ""),
			BookingEventsTopic:     getEnv("PUBSUB_BOOKING_EVENTS_TOPIC", "booking-events"),
			EmulatorHost:           getEnv("PUBSUB_EMULATOR_HOST", ""),
			CredentialsFile:        getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			MaxConcurrentHandlers:  getIntEnv("PUBSUB_MAX_CONCURRENT_HANDLERS", 10),
			MaxOutstandingMessages: getIntEnv("PUBSUB_MAX_OUTSTANDING_MESSAGES", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Sync: SyncConfig{
			Concurrency:           getIntEnv("SYNC_CONCURRENCY", 5),
			FetchWindowPastDays:   getIntEnv("SYNC_FETCH_WINDOW_PAST_DAYS", 90),
			FetchWindowFutureDays: getIntEnv("SYNC_FETCH_WINDOW_FUTURE_DAYS", 180),
			DefaultListingHours:   getFloatEnv("DEFAULT_LISTING_HOURS", 2.0),
			DefaultCheckoutTime:   getEnv("DEFAULT_CHECKOUT_TIME", "10:00:00"),
			RunBudget:             getDurationEnv("SYNC_RUN_BUDGET", 0),

			ScheduleEnabled:  getBoolEnv("SYNC_SCHEDULE_ENABLED", true),
			ScheduleInterval: getDurationEnv("SYNC_SCHEDULE_INTERVAL", 30*time.Minute),

			ListenerEnabled:  getBoolEnv("SYNC_LISTENER_ENABLED", false),
			ListenerDebounce: getDurationEnv("SYNC_LISTENER_DEBOUNCE", 2*time.Second),
		},
		Fetcher: FetcherConfig{
			TimeoutSeconds: getIntEnv("FETCHER_TIMEOUT_SECONDS", 30),
			UserAgent:      getEnv("FETCHER_USER_AGENT", "calsync-backend"),
		},
		Notifier: NotifierConfig{
			Enabled:        getBoolEnv("NOTIFIER_ENABLED", true),
			WebhookURL:     getEnv("NOTIFIER_WEBHOOK_URL", ""),
			TimeoutSeconds: getIntEnv("NOTIFIER_TIMEOUT_SECONDS", 10),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
			Port:    getIntEnv("METRICS_PORT", 8081),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.PubSub.ProjectID == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}

	if c.Sync.FetchWindowPastDays < 0 || c.Sync.FetchWindowFutureDays < 0 {
		return fmt.Errorf("sync fetch window days must not be negative")
	}

	if _, err := time.Parse("15:04:05", c.Sync.DefaultCheckoutTime); err != nil {
		return fmt.Errorf("DEFAULT_CHECKOUT_TIME must be HH:MM:SS: %w", err)
	}

	return nil
}

// FetchWindow returns the feed fetch window around the given time
func (c *SyncConfig) FetchWindow(now time.Time) (time.Time, time.Time) {
	start := now.AddDate(0, 0, -c.FetchWindowPastDays)
	end := now.AddDate(0, 0, c.FetchWindowFutureDays)
	return start, end
}

// Timeout returns the fetcher timeout as a duration
func (c *FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		// Simple comma-separated parsing
		var result []string
		for _, item := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(item)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}
