// Package config reads service configuration from environment variables
// with sensible local defaults. Everything downstream takes its settings
// by injection; nothing else reads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// SQS
	SQSRegion   string
	SQSQueueURL string

	// AWS delivery transports
	AWSRegion    string
	SESFromEmail string

	// Dispatch engine
	MaxAttempts int
	BatchSize   int
	SendTimeout time.Duration

	// Reconciliation sweeps and the reminder job
	SweepEmailInterval time.Duration
	SweepPushInterval  time.Duration
	SweepInAppInterval time.Duration
	ReminderInterval   time.Duration
	ReminderLeadDays   int

	// Upstream directories
	UserServiceURL  string
	EventServiceURL string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "herald",
		DBPassword: "",
		DBName:     "herald",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,
		RedisDB:   0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@herald.local",

		MaxAttempts: 3,
		BatchSize:   50,
		SendTimeout: 30 * time.Second,

		SweepEmailInterval: 15 * time.Minute,
		SweepPushInterval:  5 * time.Minute,
		SweepInAppInterval: time.Minute,
		ReminderInterval:   24 * time.Hour,
		ReminderLeadDays:   1,

		UserServiceURL:  "http://localhost:8081",
		EventServiceURL: "http://localhost:8082",
	}

	if err := cfg.loadInt("PORT", &cfg.Port); err != nil {
		return nil, err
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}
	if err := cfg.loadInt("DB_PORT", &cfg.DBPort); err != nil {
		return nil, err
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}
	if err := cfg.loadInt("REDIS_PORT", &cfg.RedisPort); err != nil {
		return nil, err
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}
	if err := cfg.loadInt("REDIS_DB", &cfg.RedisDB); err != nil {
		return nil, err
	}

	// AWS
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}
	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}
	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Dispatch engine
	if err := cfg.loadInt("NOTIFY_MAX_ATTEMPTS", &cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if err := cfg.loadInt("NOTIFY_BATCH_SIZE", &cfg.BatchSize); err != nil {
		return nil, err
	}
	if err := cfg.loadDuration("SEND_TIMEOUT", &cfg.SendTimeout); err != nil {
		return nil, err
	}

	// Sweeps and reminders
	if err := cfg.loadDuration("SWEEP_EMAIL_INTERVAL", &cfg.SweepEmailInterval); err != nil {
		return nil, err
	}
	if err := cfg.loadDuration("SWEEP_PUSH_INTERVAL", &cfg.SweepPushInterval); err != nil {
		return nil, err
	}
	if err := cfg.loadDuration("SWEEP_INAPP_INTERVAL", &cfg.SweepInAppInterval); err != nil {
		return nil, err
	}
	if err := cfg.loadDuration("REMINDER_INTERVAL", &cfg.ReminderInterval); err != nil {
		return nil, err
	}
	if err := cfg.loadInt("REMINDER_LEAD_DAYS", &cfg.ReminderLeadDays); err != nil {
		return nil, err
	}

	// Directories
	if url := os.Getenv("USER_SERVICE_URL"); url != "" {
		cfg.UserServiceURL = url
	}
	if url := os.Getenv("EVENT_SERVICE_URL"); url != "" {
		cfg.EventServiceURL = url
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("NOTIFY_BATCH_SIZE must be at least 1, got %d", cfg.BatchSize)
	}

	return cfg, nil
}

func (c *Config) loadInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func (c *Config) loadDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

// DatabaseURL builds the Postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}
