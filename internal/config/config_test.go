package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_HappyPath_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("DATABASE_URL", "letters.db")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.URL != "letters.db" {
		t.Fatalf("unexpected Database.URL: %q", cfg.Database.URL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.BaseURL != "http://localhost:3000" {
		t.Fatalf("unexpected BaseURL default: %q", cfg.BaseURL)
	}
	if cfg.Scheduler.Enabled {
		t.Fatalf("expected scheduler disabled by default")
	}
	if cfg.Scheduler.CronSpec != "* * * * *" {
		t.Fatalf("unexpected CronSpec default: %q", cfg.Scheduler.CronSpec)
	}
	if cfg.Mail.SMTPPort != 587 {
		t.Fatalf("unexpected SMTP_PORT default: %d", cfg.Mail.SMTPPort)
	}
	if cfg.Mail.RatePerMinute != 0 {
		t.Fatalf("unexpected MAIL_RATE_PER_MINUTE default: %d", cfg.Mail.RatePerMinute)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_HappyPath_WithRedisAndScheduler(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/letters?sslmode=disable")
	t.Setenv("MAIL_WEBHOOK_URL", "https://example.com/send")
	t.Setenv("ENABLE_SCHEDULER", "true")
	t.Setenv("SCHED_CRON", "@every 30s")
	t.Setenv("BASE_URL", "https://letters.example.com")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Scheduler.Enabled {
		t.Fatalf("expected scheduler enabled")
	}
	if cfg.Scheduler.CronSpec != "@every 30s" {
		t.Fatalf("unexpected CronSpec: %q", cfg.Scheduler.CronSpec)
	}
	if cfg.Mail.WebhookURL != "https://example.com/send" {
		t.Fatalf("unexpected WebhookURL: %q", cfg.Mail.WebhookURL)
	}
	if cfg.BaseURL != "https://letters.example.com" {
		t.Fatalf("unexpected BaseURL: %q", cfg.BaseURL)
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

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("SMTP_HOST", "smtp.example.com")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected error mentioning DATABASE_URL, got: %v", err)
	}
}

func TestLoadAll_NoTransportConfigured(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("DATABASE_URL", "letters.db")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "SMTP_HOST") || !strings.Contains(err.Error(), "MAIL_WEBHOOK_URL") {
		t.Fatalf("expected error mentioning the transport env vars, got: %v", err)
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid SMTP_PORT", "SMTP_PORT", "abc"},
		{"invalid MAIL_RATE_PER_MINUTE", "MAIL_RATE_PER_MINUTE", "nope"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("DATABASE_URL", "letters.db")
			t.Setenv("SMTP_HOST", "smtp.example.com")

			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}

			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		set  func()
		want string
	}{
		{
			name: "smtp port <= 0",
			set: func() {
				t.Setenv("SMTP_PORT", "0")
			},
			want: "SMTP_PORT",
		},
		{
			name: "negative rate",
			set: func() {
				t.Setenv("MAIL_RATE_PER_MINUTE", "-1")
			},
			want: "MAIL_RATE_PER_MINUTE",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("DATABASE_URL", "letters.db")
			t.Setenv("SMTP_HOST", "smtp.example.com")
			tc.set()

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
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

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL",
		"SERVER_ADDRESS",
		"BASE_URL",
		"ENABLE_SCHEDULER",
		"SCHED_CRON",
		"SMTP_HOST",
		"SMTP_PORT",
		"SMTP_USER",
		"SMTP_PASS",
		"SMTP_FROM",
		"SMTP_SECURE",
		"MAIL_WEBHOOK_URL",
		"MAIL_RATE_PER_MINUTE",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
