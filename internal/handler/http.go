package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gtfsviewer/internal/store"
	"gtfsviewer/internal/viewer"
	"gtfsviewer/pkg/gtfsapi"
)

// UIHandler serves the actions behind the page sidebar. Every action runs
// against the caller's session and answers with the resulting state.
type UIHandler struct {
	sessions  sessionCookie
	maxUpload int64
	logger    *slog.Logger
}

func NewUIHandler(sessions *store.Store, cookieName string, ttl time.Duration, maxUpload int64, logger *slog.Logger) *UIHandler {
	return &UIHandler{
		sessions:  sessionCookie{store: sessions, name: cookieName, ttl: ttl},
		maxUpload: maxUpload,
		logger:    logger.With("component", "ui_handler"),
	}
}

// StateResponse answers every action. OK is false when the action failed
// or was superseded, even though State and Notice are still current.
type StateResponse struct {
	OK     bool           `json:"ok"`
	State  viewer.State   `json:"state"`
	Notice *viewer.Notice `json:"notice,omitempty"`
}

type datasetRequest struct {
	DatasetID string `json:"datasetId"`
}

type routeRequest struct {
	RouteID string `json:"routeId"`
}

type dateTimeRequest struct {
	DateTime string `json:"datetime"`
}

func (h *UIHandler) GetState(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)
	h.respondState(w, sess, true)
}

func (h *UIHandler) ReloadDatasets(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)
	err := sess.Controller.LoadDatasets(r.Context())
	h.respondResult(w, sess, "reload_datasets", err)
}

func (h *UIHandler) SelectDataset(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess := h.sessions.resolve(w, r)
	err := sess.Controller.SelectDataset(r.Context(), req.DatasetID)
	h.respondResult(w, sess, "select_dataset", err)
}

func (h *UIHandler) SelectRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess := h.sessions.resolve(w, r)
	err := sess.Controller.SelectRoute(req.RouteID)
	h.respondResult(w, sess, "select_route", err)
}

func (h *UIHandler) SetDateTime(w http.ResponseWriter, r *http.Request) {
	var req dateTimeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess := h.sessions.resolve(w, r)
	err := sess.Controller.SetDateTime(req.DateTime)
	h.respondResult(w, sess, "set_datetime", err)
}

func (h *UIHandler) ViewRoute(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)
	_, err := sess.Controller.ViewRoute(r.Context())
	h.respondResult(w, sess, "view_route", err)
}

// Upload streams the multipart field "file" to the upstream API without
// buffering the archive.
func (h *UIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "missing file field")
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(w, http.StatusRequestEntityTooLarge, "file is too large")
				return
			}
			respondError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		err = sess.Controller.Upload(r.Context(), part.FileName(), part)
		part.Close()

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		h.respondResult(w, sess, "upload", err)
		return
	}
}

// respondResult maps an action error to a response. Failures the controller
// already turned into a notice are answered with the new state; bad input
// and conflicts get an error envelope.
func (h *UIHandler) respondResult(w http.ResponseWriter, sess *store.Session, action string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, viewer.ErrSuperseded):
		h.logger.Debug("action superseded", "action", action, "session_id", sess.ID)
	case isBadInput(err):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, viewer.ErrUploadInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	default:
		h.logger.Info("action failed", "action", action, "session_id", sess.ID, "error", err)
	}
	h.respondState(w, sess, err == nil)
}

func (h *UIHandler) respondState(w http.ResponseWriter, sess *store.Session, ok bool) {
	state := sess.Controller.State()
	respondJSON(w, http.StatusOK, StateResponse{
		OK:     ok,
		State:  state,
		Notice: state.Notice,
	})
}

func isBadInput(err error) bool {
	for _, target := range []error{
		viewer.ErrUnknownDataset,
		viewer.ErrUnknownRoute,
		viewer.ErrDatasetRequired,
		viewer.ErrRouteRequired,
		viewer.ErrDateTimeRequired,
		viewer.ErrInvalidDateTime,
		viewer.ErrNotZip,
		gtfsapi.ErrInvalidArgument,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
