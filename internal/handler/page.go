package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"gtfsviewer/internal/store"
	"gtfsviewer/internal/viewer"
)

var pageTemplate = template.Must(template.New("page").Parse(tmplPage))

type PageHandler struct {
	sessions sessionCookie
	title    string
	logger   *slog.Logger
}

func NewPageHandler(sessions *store.Store, cookieName string, ttl time.Duration, title string, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		sessions: sessionCookie{store: sessions, name: cookieName, ttl: ttl},
		title:    title,
		logger:   logger.With("component", "page_handler"),
	}
}

type pageData struct {
	Title string
	State viewer.State
}

// Index renders the viewer page with the session's state inlined, so the
// sidebar is filled before the first action.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, pageData{
		Title: h.title,
		State: sess.Controller.State(),
	}); err != nil {
		h.logger.Error("template error", "error", err)
	}
}
