package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/middleware"
	"gtfsviewer/internal/store"
)

// Stats tracks server-wide counters.
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

type StatsHandler struct {
	sessions *store.Store
	hub      *hub.Hub
	limiter  *middleware.RateLimiter
	version  string
}

// NewStatsHandler builds the /stats handler. limiter may be nil.
func NewStatsHandler(sessions *store.Store, h *hub.Hub, limiter *middleware.RateLimiter, version string) *StatsHandler {
	return &StatsHandler{
		sessions: sessions,
		hub:      h,
		limiter:  limiter,
		version:  version,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse      `json:"server"`
	Sessions  SessionStatsResponse     `json:"sessions"`
	WebSocket WebSocketStatsResponse   `json:"websocket"`
	RateLimit *middleware.LimiterStats `json:"rate_limit,omitempty"`
	Go        GoStatsResponse          `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	Version       string    `json:"version"`
}

type SessionStatsResponse struct {
	Active int `json:"active"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	Clients     int   `json:"clients"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			Version:       h.version,
		},
		Sessions: SessionStatsResponse{
			Active: h.sessions.Count(),
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			Clients:     h.hub.ClientCount(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.limiter != nil {
		ls := h.limiter.Stats()
		response.RateLimit = &ls
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
