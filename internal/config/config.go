package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env        string `env:"ENV,default=dev"`
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Scheduler  SchedulerConfig
	WhatsApp   WhatsAppConfig
	Automation AutomationConfig
	Session    SessionConfig
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS,default=:8080"`
}

type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER,default=sqlite"`
	URL    string `env:"DATABASE_URL"`
}

type RedisConfig struct {
	Address    string `env:"REDIS_ADDR"`
	Password   string `env:"REDIS_PASSWORD"`
	DB         int    `env:"REDIS_DB,default=0"`
	TTLSeconds int    `env:"REDIS_TTL_SECONDS,default=86400"`

	Enabled bool
	TTL     time.Duration
}

type SchedulerConfig struct {
	IntervalSeconds int  `env:"SCHED_INTERVAL_SECONDS,default=60"`
	BatchSize       int  `env:"SCHED_BATCH_SIZE,default=20"`
	LockTTLSeconds  int  `env:"SCHED_LOCK_TTL_SECONDS,default=300"`
	AutoStart       bool `env:"SCHED_AUTOSTART,default=true"`

	Interval time.Duration
	LockTTL  time.Duration
}

type WhatsAppConfig struct {
	BaseURL           string `env:"WHATSAPP_BASE_URL,default=https://graph.facebook.com"`
	APIVersion        string `env:"WHATSAPP_API_VERSION,default=v21.0"`
	PhoneNumberID     string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken       string `env:"WHATSAPP_ACCESS_TOKEN"`
	BusinessAccountID string `env:"WHATSAPP_BUSINESS_ACCOUNT_ID"`
	VerifyToken       string `env:"WHATSAPP_WEBHOOK_VERIFY_TOKEN"`
	AppID             string `env:"WHATSAPP_APP_ID"`
	AppSecret         string `env:"WHATSAPP_APP_SECRET"`
	DefaultRegion     string `env:"WHATSAPP_DEFAULT_REGION,default=IN"`
	RetryAttempts     int    `env:"WHATSAPP_RETRY_ATTEMPTS,default=3"`
	RetryBackoffMs    int    `env:"WHATSAPP_RETRY_BACKOFF_MS,default=500"`
	TimeoutSeconds    int    `env:"WHATSAPP_TIMEOUT_SECONDS,default=15"`

	RetryBackoff time.Duration
	Timeout      time.Duration
}

type AutomationConfig struct {
	MaxDepth              int `env:"AUTOMATION_MAX_DEPTH,default=3"`
	BatchSize             int `env:"AUTOMATION_BATCH_SIZE,default=50"`
	WebhookTimeoutSeconds int `env:"AUTOMATION_WEBHOOK_TIMEOUT_SECONDS,default=10"`

	WebhookTimeout time.Duration
}

type SessionConfig struct {
	TTLHours                 int `env:"SESSION_TTL_HOURS,default=24"`
	FlowDefaultsCacheSeconds int `env:"FLOW_DEFAULTS_CACHE_SECONDS,default=300"`

	TTL               time.Duration
	FlowDefaultsCache time.Duration
}

func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// LoadAll reads the configuration from the process environment. Every
// missing or invalid key is reported in the returned error.
func LoadAll() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(context.Background(), cfg, l); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Redis.Enabled = cfg.Redis.Address != ""
	cfg.Redis.TTL = time.Duration(cfg.Redis.TTLSeconds) * time.Second
	cfg.Scheduler.Interval = time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
	cfg.Scheduler.LockTTL = time.Duration(cfg.Scheduler.LockTTLSeconds) * time.Second
	cfg.WhatsApp.RetryBackoff = time.Duration(cfg.WhatsApp.RetryBackoffMs) * time.Millisecond
	cfg.WhatsApp.Timeout = time.Duration(cfg.WhatsApp.TimeoutSeconds) * time.Second
	cfg.Automation.WebhookTimeout = time.Duration(cfg.Automation.WebhookTimeoutSeconds) * time.Second
	cfg.Session.TTL = time.Duration(cfg.Session.TTLHours) * time.Hour
	cfg.Session.FlowDefaultsCache = time.Duration(cfg.Session.FlowDefaultsCacheSeconds) * time.Second

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []error
	required := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
	}
	positive := func(key string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}

	required("WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsApp.PhoneNumberID)
	required("WHATSAPP_ACCESS_TOKEN", cfg.WhatsApp.AccessToken)

	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		required("DATABASE_URL", cfg.Database.URL)
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver))
	}

	positive("SCHED_INTERVAL_SECONDS", cfg.Scheduler.IntervalSeconds)
	positive("SCHED_BATCH_SIZE", cfg.Scheduler.BatchSize)
	positive("SCHED_LOCK_TTL_SECONDS", cfg.Scheduler.LockTTLSeconds)
	positive("WHATSAPP_RETRY_ATTEMPTS", cfg.WhatsApp.RetryAttempts)
	positive("WHATSAPP_TIMEOUT_SECONDS", cfg.WhatsApp.TimeoutSeconds)
	positive("AUTOMATION_MAX_DEPTH", cfg.Automation.MaxDepth)
	positive("AUTOMATION_BATCH_SIZE", cfg.Automation.BatchSize)
	if cfg.Redis.Enabled {
		positive("REDIS_TTL_SECONDS", cfg.Redis.TTLSeconds)
	}
	if cfg.Session.TTLHours < 0 {
		errs = append(errs, errors.New("SESSION_TTL_HOURS must be >= 0"))
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
