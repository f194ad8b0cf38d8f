package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"prep/internal/reminders"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	HTTPAddr             string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret      string
	WebhookSecret  string
	WebhookMaxBody int64

	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration

	LogLevel  string
	LogFormat string

	// Location interprets interview dates and times. Falls back to UTC.
	Location     *time.Location
	TimezoneName string

	ReminderTick time.Duration
	Windows      reminders.Windows

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	ProviderBaseURL   string
	ProviderAPIKey    string
	ProviderSecretKey string

	// Warnings are non-fatal problems found while loading, for the caller to log.
	Warnings []string
}

// Load reads the environment, optionally seeded from a .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		WebhookSecret:        getenv("WEBHOOK_SECRET", ""),
		StoreDriver:          strings.ToLower(getenv("STORE_DRIVER", StorePostgres)),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		MongoURI:             getenv("MONGODB_URI", ""),
		MongoDatabase:        getenv("MONGODB_DATABASE", "interview_prep"),
		CacheBackend:         strings.ToLower(getenv("CACHE_BACKEND", CacheMemory)),
		RedisURL:             getenv("REDIS_URL", ""),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "text"),
		SMTPHost:             getenv("SMTP_HOST", ""),
		SMTPUser:             getenv("SMTP_USER", ""),
		SMTPPassword:         getenv("SMTP_PASS", ""),
		SMTPFrom:             getenv("SMTP_FROM", ""),
		ProviderBaseURL:      getenv("OMNIDIM_BASE_URL", ""),
		ProviderAPIKey:       getenv("OMNIDIM_API_KEY", ""),
		ProviderSecretKey:    getenv("OMNIDIM_SECRET_KEY", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.JWTSecret, err = require("JWT_SECRET"); err != nil {
		errs = append(errs, err)
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, missing("DATABASE_URL"))
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, missing("MONGODB_URI"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver))
	}

	switch cfg.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, missing("REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND: unknown backend %q", cfg.CacheBackend))
	}

	d := reminders.DefaultWindows()
	cfg.CacheTTL = duration("CACHE_TTL", 24*time.Hour, &errs)
	cfg.ReminderTick = duration("REMINDER_TICK", time.Minute, &errs)
	cfg.Windows = reminders.Windows{
		EmailMin:   duration("REMINDER_EMAIL_MIN", d.EmailMin, &errs),
		EmailMax:   duration("REMINDER_EMAIL_MAX", d.EmailMax, &errs),
		PushMin:    duration("REMINDER_PUSH_MIN", d.PushMin, &errs),
		PushMax:    duration("REMINDER_PUSH_MAX", d.PushMax, &errs),
		StaleAfter: duration("REMINDER_STALE_AFTER", d.StaleAfter, &errs),
		Horizon:    duration("REMINDER_HORIZON", d.Horizon, &errs),
	}
	if cfg.ReminderTick <= 0 {
		errs = append(errs, fmt.Errorf("REMINDER_TICK: must be positive, got %s", cfg.ReminderTick))
	}
	if err := cfg.Windows.Validate(); err != nil {
		errs = append(errs, err)
	}

	maxBody, err := strconv.ParseInt(getenv("WEBHOOK_MAX_BODY", "5242880"), 10, 64)
	if err != nil || maxBody <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_MAX_BODY: must be a positive byte count, got %q", getenv("WEBHOOK_MAX_BODY", "")))
	}
	cfg.WebhookMaxBody = maxBody

	port, err := strconv.Atoi(getenv("SMTP_PORT", "587"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SMTP_PORT: %w", err))
	}
	cfg.SMTPPort = port

	cfg.TimezoneName = getenv("INTERVIEW_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("INTERVIEW_TIMEZONE %q: %v; using UTC", cfg.TimezoneName, err))
		loc = time.UTC
		cfg.TimezoneName = "UTC"
	}
	cfg.Location = loc

	return cfg, errors.Join(errs...)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func require(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", missing(key)
	}
	return v, nil
}

func missing(key string) error {
	return errors.New("missing env: " + key)
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
