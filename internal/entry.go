// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/casebook/internal/api"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/metrics"
	"github.com/starford/casebook/internal/pipeline"
	"github.com/starford/casebook/internal/sse"
	"github.com/starford/casebook/internal/storage"
	"github.com/starford/casebook/internal/store"
)

// Runtime holds the components shared by the server and the one-shot
// commands.
type Runtime struct {
	Config *Config
	Logger *slog.Logger
	DB     *store.DB
	Engine *pipeline.Engine
	Broker *sse.Broker
	// Inbox is nil when no inbox path is configured.
	Inbox *storage.FS
}

// Open wires the store, engine and broker from the configuration.
func Open(opts ...Option) (*Runtime, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	loc, err := cfg.Reconcile.Location()
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("calendar_path", cfg.Calendar.Path),
		slog.String("tenant", cfg.Reconcile.Tenant),
		slog.String("timezone", loc.String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	rt := &Runtime{Config: cfg, Logger: logger, DB: db}

	if cfg.Inbox.Path != "" {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
		if rt.Inbox, err = storage.NewFS(cfg.Inbox.Path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init inbox: %w", err)
		}
	}

	rt.Broker = sse.NewBroker(2 * time.Second)

	engineOpts := []pipeline.Option{
		pipeline.WithLocation(loc),
		pipeline.WithMetrics(metrics.New()),
		pipeline.WithNotifier(rt.Broker),
		pipeline.WithLinkAfterSync(cfg.Reconcile.LinkAfterSync),
		pipeline.WithBatchTimeout(cfg.Reconcile.BatchTimeout),
	}
	if cfg.Reconcile.Workers > 0 {
		engineOpts = append(engineOpts, pipeline.WithWorkers(cfg.Reconcile.Workers))
	}
	if cfg.Reconcile.SessionDuration > 0 {
		engineOpts = append(engineOpts, pipeline.WithDefaultDuration(cfg.Reconcile.SessionDuration))
	}
	if cfg.Calendar.Path != "" {
		engineOpts = append(engineOpts, pipeline.WithCalendar(calendar.NewFile(cfg.Calendar.Path, loc)))
	}

	if rt.Engine, err = pipeline.New(db, logger, engineOpts...); err != nil {
		rt.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return rt, nil
}

// Close releases the broker and the database.
func (rt *Runtime) Close() {
	rt.Broker.Close()
	if err := rt.DB.Close(); err != nil {
		rt.Logger.Error("store close failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server and, when enabled, the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := Open(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.Config, rt.Logger

	apiRouter := api.NewRouter(rt.Engine, cfg.Reconcile.Tenant, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.Broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api. The router serves /api/events itself.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Watch && rt.Inbox != nil {
		g.Go(func() error {
			err := rt.Engine.WatchInbox(gCtx, cfg.Reconcile.Tenant, rt.Inbox, cfg.Inbox.Path, cfg.Inbox.Debounce,
				func(rep pipeline.BatchReport, err error) {
					if err != nil {
						logger.Error("inbox: pass failed", slog.String("error", err.Error()))
						return
					}
					if rep.Processed+rep.Failed > 0 {
						logger.Info("inbox: pass done",
							slog.Int("processed", rep.Processed),
							slog.Int("linked", rep.Linked),
							slog.Int("failed", rep.Failed))
					}
				})
			if err != nil {
				return fmt.Errorf("inbox watcher: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the errgroup so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
