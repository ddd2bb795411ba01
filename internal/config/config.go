// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Notification backends.
const (
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
	NotifyLog   = "log"
)

// Config holds all runtime configuration for the discovery service.
type Config struct {
	DatabaseURL string `validate:"required_without=SQLitePath"`
	DBMaxConns  int    `validate:"gte=0,lte=1000"`
	SQLitePath  string
	RedisURL    string

	SAMAPIKey     string
	SAMBaseURL    string        `validate:"required,url"`
	SourceTimeout time.Duration `validate:"gt=0"`
	StoreTimeout  time.Duration `validate:"gt=0"`

	PageSize            int           `validate:"min=1,max=1000"`
	PageDelay           time.Duration `validate:"gte=0"`
	BackfillMonths      int           `validate:"min=1,max=120"`
	BackfillWindowDelay time.Duration `validate:"gte=0"`
	BackfillThreshold   int           `validate:"gte=0"`

	SyncCron        string `validate:"required"`
	ReminderCron    string `validate:"required"`
	SavedSearchCron string `validate:"required"`

	NotifyBackend string `validate:"oneof=redis kafka log"`
	NotifyChannel string `validate:"required"`
	KafkaBrokers  []string
	KafkaTopic    string

	OpsPort  string `validate:"required,numeric"`
	GRPCPort string `validate:"required,numeric"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// Load reads an optional .env file, then the environment, and returns a
// validated Config. Non-empty overrides (typically from CLI flags) win over
// the environment.
func Load(overrides map[string]string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(func(key string) string {
		if v := overrides[key]; v != "" {
			return v
		}
		return os.Getenv(key)
	})
}

// FromEnv builds a Config from getenv. Unset variables take their defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		DatabaseURL: e.str("DATABASE_URL", ""),
		DBMaxConns:  e.int("DB_MAX_CONNS", 0),
		SQLitePath:  e.str("SQLITE_PATH", ""),
		RedisURL:    e.str("REDIS_URL", ""),

		SAMAPIKey:     e.str("SAM_API_KEY", ""),
		SAMBaseURL:    e.str("SAM_BASE_URL", "https://api.sam.gov/opportunities/v2/search"),
		SourceTimeout: e.duration("SOURCE_TIMEOUT", 30*time.Second),
		StoreTimeout:  e.duration("STORE_TIMEOUT", 60*time.Second),

		PageSize:            e.int("SYNC_PAGE_SIZE", 100),
		PageDelay:           e.duration("SYNC_PAGE_DELAY", 200*time.Millisecond),
		BackfillMonths:      e.int("BACKFILL_MONTHS", 12),
		BackfillWindowDelay: e.duration("BACKFILL_WINDOW_DELAY", 5*time.Second),
		BackfillThreshold:   e.int("BACKFILL_THRESHOLD", 100),

		SyncCron:        e.str("SYNC_CRON", "@daily"),
		ReminderCron:    e.str("REMINDER_CRON", "@hourly"),
		SavedSearchCron: e.str("SAVED_SEARCH_CRON", "@daily"),

		NotifyBackend: strings.ToLower(e.str("NOTIFY_BACKEND", NotifyRedis)),
		NotifyChannel: e.str("NOTIFY_CHANNEL", "notifications"),
		KafkaBrokers:  e.list("KAFKA_BROKERS"),
		KafkaTopic:    e.str("KAFKA_TOPIC", "discovery.notifications"),

		OpsPort:  e.str("OPS_PORT", "8081"),
		GRPCPort: e.str("GRPC_PORT", "9091"),

		LogLevel:  strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(e.str("LOG_FORMAT", "text")),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ValidateNotifier checks the settings the selected notification backend
// needs. Only the long-running service sends notifications.
func (c *Config) ValidateNotifier() error {
	switch c.NotifyBackend {
	case NotifyRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when NOTIFY_BACKEND=%s", NotifyRedis)
		}
	case NotifyKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when NOTIFY_BACKEND=%s", NotifyKafka)
		}
	}
	return nil
}

// env reads typed values and collects parse errors so every bad variable is
// reported at once.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	s := strings.TrimSpace(e.get(key))
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer, got %q", key, s))
		return def
	}
	return v
}

// duration accepts Go duration strings ("500ms", "2m") or a bare number of
// seconds.
func (e *env) duration(key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(e.get(key))
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a duration, got %q", key, s))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
