package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gtfsviewer/internal/domain"
)

// DatasetLister is the upstream call used as a readiness probe.
type DatasetLister interface {
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)
}

type HealthHandler struct {
	upstream DatasetLister
	timeout  time.Duration
}

func NewHealthHandler(upstream DatasetLister, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthHandler{
		upstream: upstream,
		timeout:  timeout,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	Upstream     string    `json:"upstream"`
	DatasetCount int       `json:"datasetCount"`
	Error        string    `json:"error,omitempty"`
	ServerTime   time.Time `json:"serverTime"`
}

// Readyz reports ready when the upstream API answers the dataset list.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	datasets, err := h.upstream.ListDatasets(ctx)

	resp := ReadyResponse{
		Ready:        err == nil,
		Upstream:     "connected",
		DatasetCount: len(datasets),
		ServerTime:   time.Now().UTC(),
	}
	status := http.StatusOK
	if err != nil {
		resp.Upstream = "unreachable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
