package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func baseEnv() map[string]string {
	return map[string]string{
		"WHATSAPP_PHONE_NUMBER_ID": "1001",
		"WHATSAPP_ACCESS_TOKEN":    "token",
	}
}

func loadMap(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return load(envconfig.MapLookuper(env))
}

func TestLoadAll_FromProcessEnv(t *testing.T) {
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "1001")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "token")
	t.Setenv("SERVER_ADDRESS", ":9090")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected Server.Address: %q", cfg.Server.Address)
	}
}

func TestLoad_HappyPath_Defaults(t *testing.T) {
	cfg, err := loadMap(t, baseEnv())
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected Database.Driver default: %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("unexpected Scheduler.Interval default: %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchSize != 20 {
		t.Fatalf("unexpected Scheduler.BatchSize default: %d", cfg.Scheduler.BatchSize)
	}
	if !cfg.Scheduler.AutoStart {
		t.Fatalf("expected scheduler autostart by default")
	}
	if cfg.WhatsApp.APIVersion != "v21.0" {
		t.Fatalf("unexpected WhatsApp.APIVersion default: %q", cfg.WhatsApp.APIVersion)
	}
	if cfg.WhatsApp.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected WhatsApp.RetryBackoff: %v", cfg.WhatsApp.RetryBackoff)
	}
	if cfg.Automation.MaxDepth != 3 {
		t.Fatalf("unexpected Automation.MaxDepth default: %d", cfg.Automation.MaxDepth)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Fatalf("unexpected Session.TTL default: %v", cfg.Session.TTL)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.IsProd() {
		t.Fatalf("expected dev environment by default")
	}
}

func TestLoad_HappyPath_WithRedis(t *testing.T) {
	env := baseEnv()
	env["REDIS_ADDR"] = "localhost:6379"
	env["REDIS_PASSWORD"] = "secret"
	env["REDIS_DB"] = "3"
	env["REDIS_TTL_SECONDS"] = "42"

	cfg, err := loadMap(t, env)
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	_, err := loadMap(t, map[string]string{})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, key := range []string{"WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_ACCESS_TOKEN"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error mentioning %s, got: %v", key, err)
		}
	}

	env := baseEnv()
	env["DB_DRIVER"] = "postgres"
	_, err = loadMap(t, env)
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected error mentioning DATABASE_URL, got: %v", err)
	}
}

func TestLoad_InvalidInts(t *testing.T) {
	for _, key := range []string{"SCHED_INTERVAL_SECONDS", "SCHED_BATCH_SIZE", "REDIS_DB", "WHATSAPP_RETRY_ATTEMPTS"} {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = "nope"
			if _, err := loadMap(t, env); err == nil {
				t.Fatalf("expected error for %s=nope, got nil", key)
			}
		})
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		key string
		val string
	}{
		{"SCHED_BATCH_SIZE", "0"},
		{"SCHED_INTERVAL_SECONDS", "0"},
		{"AUTOMATION_MAX_DEPTH", "0"},
		{"WHATSAPP_RETRY_ATTEMPTS", "-1"},
		{"DB_DRIVER", "mysql"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.val
			_, err := loadMap(t, env)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}
