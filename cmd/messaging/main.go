package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rushabhsmehta/tour-messaging/internal/analytics"
	"github.com/rushabhsmehta/tour-messaging/internal/api"
	"github.com/rushabhsmehta/tour-messaging/internal/automation"
	"github.com/rushabhsmehta/tour-messaging/internal/cache"
	"github.com/rushabhsmehta/tour-messaging/internal/client"
	"github.com/rushabhsmehta/tour-messaging/internal/config"
	"github.com/rushabhsmehta/tour-messaging/internal/flowtoken"
	"github.com/rushabhsmehta/tour-messaging/internal/repo"
	"github.com/rushabhsmehta/tour-messaging/internal/scheduler"
	"github.com/rushabhsmehta/tour-messaging/internal/service"
	"github.com/rushabhsmehta/tour-messaging/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}
	setupLogging(cfg)

	dsn := cfg.Database.URL
	if dsn == "" {
		dsn = filepath.Join("data", "messaging.db") + "?_pragma=busy_timeout(5000)"
		if err := os.MkdirAll("data", 0o755); err != nil {
			log.Fatal(err)
		}
	}
	store, err := repo.NewStore(cfg.Database.Driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	graph := client.NewGraphClient(client.GraphConfig{
		BaseURL:           cfg.WhatsApp.BaseURL,
		APIVersion:        cfg.WhatsApp.APIVersion,
		PhoneNumberID:     cfg.WhatsApp.PhoneNumberID,
		AccessToken:       cfg.WhatsApp.AccessToken,
		BusinessAccountID: cfg.WhatsApp.BusinessAccountID,
		AppID:             cfg.WhatsApp.AppID,
		AppSecret:         cfg.WhatsApp.AppSecret,
		Timeout:           cfg.WhatsApp.Timeout,
		RetryAttempts:     cfg.WhatsApp.RetryAttempts,
		RetryBackoff:      cfg.WhatsApp.RetryBackoff,
	})

	recorder := analytics.NewRecorder(store)
	sessions := session.NewManager(store, cfg.Session.TTL)
	flowTokens := flowtoken.NewManager(store, cfg.Session.FlowDefaultsCache)

	engine := automation.NewEngine(store, sessions, client.NewWebhookClient(cfg.Automation.WebhookTimeout), recorder, automation.Options{
		MaxDepth:  cfg.Automation.MaxDepth,
		BatchSize: cfg.Automation.BatchSize,
	})

	dispatcher := service.NewDispatcher(graph, store, sessions, recorder, cfg.WhatsApp.DefaultRegion).
		WithFlowTokens(flowTokens).
		WithAutomations(engine)
	engine.SetSender(service.NewAutomationSender(dispatcher))

	processor := service.NewProcessor(graph, store, recorder).
		WithSessions(store).
		WithAutomations(engine).
		WithStaleAfter(cfg.Scheduler.LockTTL)
	statuses := service.NewStatusUpdater(store, recorder).
		WithSessions(store).
		WithAutomations(engine)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Warn("redis unavailable, continuing without cache", "addr", cfg.Redis.Address, "err", err)
		} else {
			sent := cache.NewRedisCache(rdb, cfg.Redis.TTL)
			dispatcher.WithCache(sent)
			processor.WithCache(sent).WithLocker(cache.NewRedisLocker(rdb), cfg.Scheduler.LockTTL)
			statuses.WithCache(sent)
		}
	}

	inbound := service.NewInbound(sessions, store, recorder, cfg.WhatsApp.DefaultRegion).
		WithAutomations(engine)
	templates := service.NewTemplateSync(graph, store, flowTokens)

	sched, err := scheduler.New(cfg.Scheduler.Interval, cfg.Scheduler.BatchSize, processor)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Scheduler.AutoStart {
		sched.Start()
	}

	h := api.NewHandler(sched, api.Deps{
		Messages:    store,
		Sender:      dispatcher,
		Processor:   processor,
		Statuses:    statuses,
		Events:      inbound,
		Templates:   templates,
		DB:          store,
		BatchSize:   cfg.Scheduler.BatchSize,
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AppSecret:   cfg.WhatsApp.AppSecret,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("messaging app starting",
			"addr", cfg.Server.Address,
			"db", cfg.Database.Driver,
			"interval", cfg.Scheduler.Interval,
			"batch", cfg.Scheduler.BatchSize,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProd() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
