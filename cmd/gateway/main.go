package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	httpAdapter "github.com/meridianapp/realtime-gateway/internal/adapters/primary/http"
	mw "github.com/meridianapp/realtime-gateway/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/meridianapp/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/meridianapp/realtime-gateway/internal/adapters/secondary/backplane"
	"github.com/meridianapp/realtime-gateway/internal/adapters/secondary/mongodb"
	"github.com/meridianapp/realtime-gateway/internal/auth"
	"github.com/meridianapp/realtime-gateway/internal/config"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
	"github.com/meridianapp/realtime-gateway/internal/core/services"
	"github.com/meridianapp/realtime-gateway/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Connect to the Document Store
	ctx := context.Background()
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	store, err := mongodb.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancelConnect()
	if err != nil {
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close(context.Background()) }()
	logger.Info("document store connection established", "database", cfg.Mongo.Database)

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	hub := wsAdapter.NewHub(logger)
	go hub.Run()

	// 5. Load the Model Registry
	registry := services.NewRegistry()
	if cfg.App.ModelsFile != "" {
		entries, err := config.LoadModels(cfg.App.ModelsFile)
		if err != nil {
			logger.Error("failed to load model manifest", "file", cfg.App.ModelsFile, "error", err)
			os.Exit(1)
		}
		for _, entry := range entries {
			registry.Register(entry)
		}
		logger.Info("model registry loaded", "file", cfg.App.ModelsFile, "models", len(entries))
	} else {
		logger.Warn("no model manifest configured, no collections will be watched for delivery")
	}

	// 6. Select the Backplane
	var plane ports.Backplane
	switch cfg.Backplane.Kind {
	case config.BackplaneNATS:
		plane, err = backplane.NewNATS(backplane.NATSConfig{
			URL:           cfg.Backplane.URL,
			Subject:       cfg.Backplane.Subject,
			MaxReconnect:  cfg.Backplane.MaxReconnect,
			ReconnectWait: cfg.Backplane.ReconnectWait,
		}, logger)
		if err != nil {
			logger.Error("failed to connect backplane", "error", err)
			os.Exit(1)
		}
	default:
		plane = backplane.NewLocal(logger)
	}

	// 7. Wire the Change Pipeline
	router := services.NewRouter(logger)
	dispatcher := services.NewDispatcher(registry, router, plane, logger)
	watcher := mongodb.NewWatcher(store.Database(), dispatcher, mongodb.Config{
		IgnoredCollections: cfg.Watcher.IgnoredCollections,
		IgnoredOperations:  cfg.Watcher.IgnoredOperations,
		BatchSize:          cfg.Watcher.BatchSize,
		MaxAwait:           cfg.Watcher.MaxAwait,
		FullDocumentMode:   cfg.Watcher.FullDocumentMode,
		MaxRestarts:        cfg.Watcher.MaxRestarts,
	}, logger)
	lifecycle := services.NewLifecycle(watcher, plane, hub, logger)

	if err := lifecycle.Start(ctx); err != nil {
		logger.Error("failed to start realtime subsystem", "error", err)
		os.Exit(1)
	}

	// 8. Handlers (Primary Adapters)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(store, lifecycle, cfg.App.Version)

	// 9. Rate Limiter
	var handshakeLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		limiterCfg := mw.DefaultRateLimiterConfig()
		limiterCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limiterCfg.BurstSize = cfg.RateLimit.BurstSize
		handshakeLimiter = mw.NewRateLimiter(limiterCfg)
	}

	// 10. Setup Router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (authentication is handled inside the handler)
		r.Group(func(r chi.Router) {
			if handshakeLimiter != nil {
				r.Use(handshakeLimiter.Middleware)
			}
			r.Get("/ws", wsHandler.ServeHTTP)
		})

		r.Get("/realtime/status", healthHandler.HandleRealtimeStatus)
	})

	// 11. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting new connections first, then drain the pipeline so
	// nothing already read from the stream is lost.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := lifecycle.Stop(shutdownCtx); err != nil {
		logger.Error("realtime shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
