package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gtfsviewer/internal/cache"
	"gtfsviewer/internal/config"
	"gtfsviewer/internal/handler"
	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/middleware"
	"gtfsviewer/internal/store"
	"gtfsviewer/internal/viewer"
	"gtfsviewer/pkg/gtfsapi"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gtfsviewer",
		"version", version,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"upstream_url", cfg.UpstreamURL,
		"redis_enabled", cfg.RedisEnabled,
	)

	api := gtfsapi.New(cfg.UpstreamURL, cfg.UpstreamTimeout, logger)
	wsHub := hub.NewHub(logger)

	var persister store.Persister
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, selections will not survive restarts", "error", err)
		} else {
			defer redisCache.Close()
			persister = redisCache
			logger.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	sessions := store.New(func(id string) (*viewer.Controller, *hub.Canvas) {
		canvas := hub.NewCanvas(id, wsHub)
		view := viewer.NewMapViewController(canvas, cfg.DefaultRouteColor, logger)
		return viewer.NewController(api, view, logger.With("session_id", id)), canvas
	}, persister, cfg.SessionTTL, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Title:          "GTFS Route Viewer",
		Version:        version,
		SessionCookie:  cfg.SessionCookie,
		SessionTTL:     cfg.SessionTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
	}, sessions, wsHub, api, limiter, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)
	go sessions.Run(ctx)
	go limiter.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	cancel()

	logger.Info("shutdown complete")
}
