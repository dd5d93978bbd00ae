package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/middleware"
	"gtfsviewer/internal/store"
)

type RouterConfig struct {
	Title          string
	Version        string
	SessionCookie  string
	SessionTTL     time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string
	ReadyTimeout   time.Duration
}

// NewRouter wires every endpoint. limiter guards uploads and may be nil.
func NewRouter(cfg RouterConfig, sessions *store.Store, wsHub *hub.Hub, upstream DatasetLister, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	page := NewPageHandler(sessions, cfg.SessionCookie, cfg.SessionTTL, cfg.Title, logger)
	ui := NewUIHandler(sessions, cfg.SessionCookie, cfg.SessionTTL, cfg.MaxUploadBytes, logger)
	ws := NewWSHandler(wsHub, sessions, cfg.SessionCookie, cfg.SessionTTL, cfg.CORSOrigins, logger)
	health := NewHealthHandler(upstream, cfg.ReadyTimeout)
	stats := NewStatsHandler(sessions, wsHub, limiter, cfg.Version)

	r := chi.NewRouter()
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// The websocket upgrade needs the raw writer, so it sits outside the
	// logging and gzip wrappers.
	r.Get("/ui/ws", ws.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware(logger))
		r.Use(GzipMiddleware)

		r.Get("/", page.Index)
		r.Get("/stats", stats.GetStats)

		r.Get("/ui/state", ui.GetState)
		r.Post("/ui/datasets/reload", ui.ReloadDatasets)
		r.Post("/ui/dataset", ui.SelectDataset)
		r.Post("/ui/route", ui.SelectRoute)
		r.Post("/ui/datetime", ui.SetDateTime)
		r.Post("/ui/view", ui.ViewRoute)

		if limiter != nil {
			r.With(limiter.Middleware).Post("/ui/upload", ui.Upload)
		} else {
			r.Post("/ui/upload", ui.Upload)
		}
	})

	return r
}
