package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/kplngyi/Letter2Future/internal/api"
	"github.com/kplngyi/Letter2Future/internal/cache"
	"github.com/kplngyi/Letter2Future/internal/config"
	"github.com/kplngyi/Letter2Future/internal/mail"
	"github.com/kplngyi/Letter2Future/internal/repo"
	"github.com/kplngyi/Letter2Future/internal/scheduler"
	"github.com/kplngyi/Letter2Future/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	letters, err := repo.Open(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to open letters store", "error", err)
		os.Exit(1)
	}
	defer letters.Close()

	if err := letters.Migrate(context.Background()); err != nil {
		slog.Error("failed to migrate letters store", "error", err)
		os.Exit(1)
	}

	mailer, err := buildMailer(cfg.Mail)
	if err != nil {
		slog.Error("failed to build mail transport", "error", err)
		os.Exit(1)
	}

	dispatcher := service.NewDispatcher(letters, mailer, service.NewRenderer(cfg.BaseURL)).
		WithRateLimit(cfg.Mail.RatePerMinute)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		dispatcher.WithCache(cache.NewRedisCache(rdb, cfg.Redis.TTL))
	}

	sched, err := scheduler.New(cfg.Scheduler.CronSpec, dispatcher.Tick)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	if cfg.Scheduler.Enabled {
		sched.Start()
	} else {
		slog.Info("scheduler disabled at boot; start it via POST /v1/scheduler/start")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(api.NewHandler(sched, letters))),
	}

	go func() {
		slog.Info("letter2future listening",
			"addr", cfg.Server.Address,
			"scheduler", cfg.Scheduler.Enabled,
			"base_url", cfg.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()
}

func buildMailer(cfg config.MailConfig) (mail.Mailer, error) {
	if cfg.SMTPHost != "" {
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			SSL:      cfg.SMTPSecure,
		})
	}
	return mail.NewWebhookMailer(cfg.WebhookURL), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
