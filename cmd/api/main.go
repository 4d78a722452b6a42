package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskboard/api/internal/app"
	"taskboard/api/internal/config"
	"taskboard/api/internal/metrics"
	"taskboard/api/internal/session"
	"taskboard/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithMetrics(metrics.New()),
	}

	var dataStore app.DataStore
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		dataStore = store.NewMemoryStore()
	} else {
		if err := store.ApplyMigrations(ctx, cfg.DatabaseURL); err != nil {
			fatal(logger, "migrations failed", err)
		}
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxOpenConns})
		if err != nil {
			fatal(logger, "database connection failed", err)
		}
		defer db.Close()
		pg := store.NewPostgresStore(db)
		go purgeRevokedTokens(ctx, logger, pg)
		dataStore = pg
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for token revocation")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connection failed", err)
		}
		defer redisStore.Close()
		opts = append(opts, app.WithTokenStore(redisStore))
	}

	service := app.New(cfg, dataStore, opts...)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("taskboard API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// purgeRevokedTokens trims deny-list rows whose tokens have expired anyway.
func purgeRevokedTokens(ctx context.Context, logger *slog.Logger, pg *store.PostgresStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Warn("purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged revoked tokens", "count", n)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
