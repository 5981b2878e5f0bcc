package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Mail      MailConfig
	Redis     RedisConfig

	// BaseURL is the public address of the decrypt page, used to build
	// capability links in outbound mails.
	BaseURL string
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// URL is either a postgres:// DSN or a SQLite path.
	URL string
}

type SchedulerConfig struct {
	Enabled  bool
	CronSpec string
}

type MailConfig struct {
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPFrom   string
	SMTPSecure bool

	// WebhookURL is the fallback JSON transport, used when SMTPHost is unset.
	WebhookURL string

	RatePerMinute int
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	databaseURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		errs = append(errs, err)
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		errs = append(errs, err)
	}
	ratePerMinute, err := getEnvInt("MAIL_RATE_PER_MINUTE", 0)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			URL: databaseURL,
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnv("ENABLE_SCHEDULER", "false") == "true",
			CronSpec: getEnv("SCHED_CRON", "* * * * *"),
		},
		Mail: MailConfig{
			SMTPHost:      os.Getenv("SMTP_HOST"),
			SMTPPort:      smtpPort,
			SMTPUser:      os.Getenv("SMTP_USER"),
			SMTPPass:      os.Getenv("SMTP_PASS"),
			SMTPFrom:      os.Getenv("SMTP_FROM"),
			SMTPSecure:    getEnv("SMTP_SECURE", "false") == "true",
			WebhookURL:    os.Getenv("MAIL_WEBHOOK_URL"),
			RatePerMinute: ratePerMinute,
		},
		Redis:   redisCfg,
		BaseURL: getEnv("BASE_URL", "http://localhost:3000"),
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Mail.SMTPHost == "" && cfg.Mail.WebhookURL == "" {
		errs = append(errs, errors.New("either SMTP_HOST or MAIL_WEBHOOK_URL must be set"))
	}
	if cfg.Mail.SMTPPort <= 0 {
		errs = append(errs, errors.New("SMTP_PORT must be > 0"))
	}
	if cfg.Mail.RatePerMinute < 0 {
		errs = append(errs, errors.New("MAIL_RATE_PER_MINUTE must be >= 0"))
	}
	if cfg.Scheduler.CronSpec == "" {
		errs = append(errs, errors.New("SCHED_CRON must not be empty"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return errors.Join(nonNil...)
}
