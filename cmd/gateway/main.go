package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"paygate/internal/common/database"
	"paygate/internal/common/events"
	"paygate/internal/common/middleware"
	"paygate/internal/common/nats"
	"paygate/internal/common/sequence"
	"paygate/internal/ledger"
	"paygate/internal/ledger/api"
	"paygate/internal/ledger/store"
	"paygate/internal/merchant"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"GATEWAY_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AdminPrincipal is the only caller allowed to change the fee rate.
	AdminPrincipal string `envconfig:"ADMIN_PRINCIPAL" default:"operator"`

	EventBuffer    int           `envconfig:"EVENT_BUFFER" default:"256"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	Database database.Config
	NATS     nats.Config
}

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Apply schema migrations before opening the pool
	if err := store.Migrate(cfg.Database.URL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pgStore := store.NewPostgres(db)

	// Seed the logical clock past anything already persisted
	last, err := pgStore.LastSequence(ctx)
	if err != nil {
		logger.Error("failed to read last sequence", "error", err)
		os.Exit(1)
	}
	seq := sequence.NewCounter(last)

	// Event sink: NATS JetStream when configured, otherwise a no-op
	var publisher events.Publisher = events.NopPublisher{}
	var natsClient *nats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = nats.New(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if _, err := natsClient.EnsureStream(ctx, nats.DefaultStreamConfig("GATEWAY_EVENTS", []string{"events.>"})); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}
		publisher = nats.NewPublisher(natsClient, logger)
	}

	dispatcher := events.NewDispatcher(publisher, logger, cfg.EventBuffer)
	defer dispatcher.Close()

	registry := merchant.NewRegistry(pgStore, seq, logger)
	ledgerService := ledger.NewService(pgStore, registry, seq, dispatcher, cfg.AdminPrincipal, logger)

	handler := api.NewHandler(ledgerService, logger)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Principal)
	r.Use(chimw.Compress(5))

	// Idempotent retries for mutating requests when Redis is configured
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		idemStore := middleware.NewRedisIdempotencyStore(redis.NewClient(opts))
		r.Use(middleware.Idempotency(idemStore, cfg.IdempotencyTTL))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		if natsClient != nil {
			if err := natsClient.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", handler.Routes())
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting payment gateway",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
