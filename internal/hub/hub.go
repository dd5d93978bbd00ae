package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrClientClosed   = errors.New("client is not registered")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type Client struct {
	ID        string
	SessionID string
	Send      chan []byte
}

func NewClient(id, sessionID string, bufferSize int) *Client {
	return &Client{
		ID:        id,
		SessionID: sessionID,
		Send:      make(chan []byte, bufferSize),
	}
}

type envelope struct {
	sessionID string
	data      []byte
}

// Hub fans overlay messages out to the websocket clients of a session.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	sessionClients map[string]map[*Client]struct{}
	closed         bool

	broadcast chan envelope

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]struct{}),
		sessionClients: make(map[string]map[*Client]struct{}),
		broadcast:      make(chan envelope, 256),
		logger:         logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case env := <-h.broadcast:
			h.fanout(env)
		}
	}
}

// Publish queues data for every client of sessionID. Messages are dropped
// when the queue is full.
func (h *Hub) Publish(sessionID string, data []byte) {
	select {
	case h.broadcast <- envelope{sessionID: sessionID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "session_id", sessionID)
	}
}

// Register adds client before returning, so every message published after
// the call reaches it. After shutdown the client's Send is closed instead.
func (h *Hub) Register(client *Client) {
	h.addClient(client)
}

// Unregister removes client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.removeClient(client)
}

// SendTo builds a message and queues it for one client with fanout held
// off, so it is ordered with published messages. It fails with
// ErrClientClosed once the client is unregistered or the hub has stopped.
func (h *Hub) SendTo(client *Client, build func() ([]byte, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return ErrClientClosed
	}
	data, err := build()
	if err != nil {
		return err
	}
	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionClients[sessionID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(client.Send)
		return
	}

	h.clients[client] = struct{}{}
	if h.sessionClients[client.SessionID] == nil {
		h.sessionClients[client.SessionID] = make(map[*Client]struct{})
	}
	h.sessionClients[client.SessionID][client] = struct{}{}

	h.logger.Debug("client registered",
		"client_id", client.ID,
		"session_id", client.SessionID,
		"total", len(h.clients),
	)
}

func (h *Hub) fanout(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.sessionClients[env.sessionID] {
		select {
		case client.Send <- env.data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	if set := h.sessionClients[client.SessionID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.sessionClients, client.SessionID)
		}
	}

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.sessionClients = make(map[string]map[*Client]struct{})
}
