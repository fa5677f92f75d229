// Package main is the entry point for the unitrack API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"unitrack/internal/app"
	"unitrack/internal/domain/auth"
	"unitrack/internal/infrastructure/config"
	v1 "unitrack/internal/infrastructure/http/v1"
	"unitrack/internal/infrastructure/http/v1/handlers"
	"unitrack/internal/infrastructure/metrics"
	"unitrack/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Component:   "server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting unitrack server", "env", cfg.App.Env)

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize dependencies", "error", err)
	}
	defer deps.Close(ctx)

	// --- JWT Service ---
	secret := cfg.JWT.Secret
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warn("jwt secret not set, using development secret")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.AccessTokenTTL,
	})

	// --- Router ---
	checks := map[string]handlers.Pinger{}
	if deps.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	}
	var m *metrics.Metrics
	if cfg.App.MetricsEnabled {
		m = metrics.New()
	}
	router := v1.NewRouter(v1.RouterConfig{
		Engine:          deps.Service,
		Pool:            deps.Pool,
		HealthChecks:    checks,
		Logger:          log,
		JWTValidator:    jwtService,
		DefaultLowStock: cfg.Engine.DefaultLowStockLimit,
		Metrics:         m,
		ServiceName:     cfg.App.Name,
		CORSOrigins:     cfg.App.CORSOrigins,
		Development:     cfg.App.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	deps.Pool.LogStats(ctx)
	log.Info("server stopped")
}
