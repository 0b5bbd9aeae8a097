// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env           string
	ListenAddr    string
	DBPath        string
	TrustProxy    bool
	SessionSecret string
	// LookupMode is "scan" or "prefix"; see the credential gate.
	LookupMode string
	// CounterStore is "sqlite" (shared by every process on the database) or
	// "memory" (one process only).
	CounterStore string

	RateWindow  time.Duration
	RateGlobal  int
	RatePerUser int
	RateBulk    int

	MaxAttempts        int
	BackoffBase        time.Duration
	RetentionCompleted int
	RetentionMaxAge    time.Duration
	RetentionFailed    int
	RetentionSchedule  string
	BulkConcurrency    int
	Workers            int
	WorkerLease        time.Duration
	WorkerPollInterval time.Duration
	WorkerDrainTimeout time.Duration
	SendRatePerSecond  float64
	SendBurst          int
	SentMarkerTTL      time.Duration

	// EmailDriver is "smtp" or "log".
	EmailDriver    string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMSWebhookURL  string
	PushWebhookURL string
	WebhookToken   string
	WebhookTimeout time.Duration

	TemplateAPIURL   string
	TemplateAPIToken string

	PlansFile string
	Plans     map[model.Plan]model.PlanQuotas
}

// IsDevelopment reports whether NOTIPI_ENV is "development".
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// HasTemplateAPI reports whether templates come from the remote service
// instead of the local database.
func (c *Config) HasTemplateAPI() bool {
	return c.TemplateAPIURL != ""
}

// LoadDotEnv seeds the environment from .env.local and .env when present.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configuration from NOTIPI_* environment variables and returns a
// validated Config. Every variable is optional; defaults favor a single local
// process with the log sender. Invalid values are reported together.
func Load() (*Config, error) {
	r := &reader{}

	cfg := &Config{
		Env:           r.str("NOTIPI_ENV", "production"),
		ListenAddr:    r.str("NOTIPI_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        r.str("NOTIPI_DB_PATH", "notipi.db"),
		TrustProxy:    r.boolean("NOTIPI_TRUST_PROXY", false),
		SessionSecret: r.str("NOTIPI_SESSION_SECRET", ""),
		LookupMode:    r.str("NOTIPI_CREDENTIAL_LOOKUP", "scan"),
		CounterStore:  r.str("NOTIPI_COUNTER_STORE", "sqlite"),

		RateWindow:  r.duration("NOTIPI_RATE_WINDOW", time.Minute),
		RateGlobal:  r.integer("NOTIPI_RATE_GLOBAL", 100),
		RatePerUser: r.integer("NOTIPI_RATE_PER_USER", 50),
		RateBulk:    r.integer("NOTIPI_RATE_BULK", 20),

		MaxAttempts:        r.integer("NOTIPI_MAX_ATTEMPTS", 3),
		BackoffBase:        r.duration("NOTIPI_BACKOFF_BASE", 2*time.Second),
		RetentionCompleted: r.integer("NOTIPI_RETAIN_COMPLETED", 100),
		RetentionMaxAge:    r.duration("NOTIPI_RETAIN_COMPLETED_AGE", 24*time.Hour),
		RetentionFailed:    r.integer("NOTIPI_RETAIN_FAILED", 500),
		RetentionSchedule:  r.str("NOTIPI_RETENTION_SCHEDULE", "@every 1m"),
		BulkConcurrency:    r.integer("NOTIPI_BULK_CONCURRENCY", 8),
		Workers:            r.integer("NOTIPI_WORKERS", 5),
		WorkerLease:        r.duration("NOTIPI_WORKER_LEASE", time.Minute),
		WorkerPollInterval: r.duration("NOTIPI_WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerDrainTimeout: r.duration("NOTIPI_WORKER_DRAIN_TIMEOUT", 30*time.Second),
		SendRatePerSecond:  r.float("NOTIPI_SEND_RATE", 0),
		SendBurst:          r.integer("NOTIPI_SEND_BURST", 1),
		SentMarkerTTL:      r.duration("NOTIPI_SENT_MARKER_TTL", 48*time.Hour),

		EmailDriver:    r.str("NOTIPI_EMAIL_DRIVER", "log"),
		SMTPHost:       r.str("NOTIPI_SMTP_HOST", ""),
		SMTPPort:       r.str("NOTIPI_SMTP_PORT", "587"),
		SMTPUsername:   r.str("NOTIPI_SMTP_USERNAME", ""),
		SMTPPassword:   r.str("NOTIPI_SMTP_PASSWORD", ""),
		SMTPFrom:       r.str("NOTIPI_SMTP_FROM", ""),
		SMSWebhookURL:  r.str("NOTIPI_SMS_WEBHOOK_URL", ""),
		PushWebhookURL: r.str("NOTIPI_PUSH_WEBHOOK_URL", ""),
		WebhookToken:   r.str("NOTIPI_WEBHOOK_TOKEN", ""),
		WebhookTimeout: r.duration("NOTIPI_WEBHOOK_TIMEOUT", 10*time.Second),

		TemplateAPIURL:   r.str("NOTIPI_TEMPLATE_API_URL", ""),
		TemplateAPIToken: r.str("NOTIPI_TEMPLATE_API_TOKEN", ""),

		PlansFile: r.str("NOTIPI_PLANS_FILE", ""),
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}

	plans, err := LoadPlans(cfg.PlansFile)
	if err != nil {
		return nil, err
	}
	cfg.Plans = plans

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.LookupMode != "scan" && c.LookupMode != "prefix" {
		errs = append(errs, fmt.Errorf("NOTIPI_CREDENTIAL_LOOKUP must be scan or prefix, got %q", c.LookupMode))
	}
	if c.CounterStore != "sqlite" && c.CounterStore != "memory" {
		errs = append(errs, fmt.Errorf("NOTIPI_COUNTER_STORE must be sqlite or memory, got %q", c.CounterStore))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("NOTIPI_RATE_WINDOW must be positive"))
	}
	for name, v := range map[string]int{
		"NOTIPI_RATE_GLOBAL":   c.RateGlobal,
		"NOTIPI_RATE_PER_USER": c.RatePerUser,
		"NOTIPI_RATE_BULK":     c.RateBulk,
		"NOTIPI_MAX_ATTEMPTS":  c.MaxAttempts,
		"NOTIPI_WORKERS":       c.Workers,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, v))
		}
	}
	if c.SendRatePerSecond < 0 {
		errs = append(errs, errors.New("NOTIPI_SEND_RATE must not be negative"))
	}

	switch c.EmailDriver {
	case "log":
	case "smtp":
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			errs = append(errs, errors.New("NOTIPI_SMTP_HOST and NOTIPI_SMTP_FROM are required when NOTIPI_EMAIL_DRIVER=smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIPI_EMAIL_DRIVER must be smtp or log, got %q", c.EmailDriver))
	}

	return errors.Join(errs...)
}

// reader parses environment variables, collecting errors instead of
// stopping at the first.
type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s has invalid integer %q: %w", key, v, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s has invalid number %q: %w", key, v, err))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s has invalid duration %q: %w", key, v, err))
		return def
	}
	return d
}
