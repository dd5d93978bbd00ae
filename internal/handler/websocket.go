package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/store"
)

// WSHandler streams a session's overlay changes to the browser. A client
// receives the current canvas on connect and every change after that.
type WSHandler struct {
	hub            *hub.Hub
	sessions       sessionCookie
	originPatterns []string
	logger         *slog.Logger
}

func NewWSHandler(h *hub.Hub, sessions *store.Store, cookieName string, ttl time.Duration, origins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:            h,
		sessions:       sessionCookie{store: sessions, name: cookieName, ttl: ttl},
		originPatterns: originHosts(origins),
		logger:         logger.With("component", "ws_handler"),
	}
}

// originHosts turns CORS origins such as "https://example.org" into the
// host patterns the websocket origin check expects.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.resolve(w, r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), sess.ID, 256)
	h.hub.Register(client)
	ServerStats.IncWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Registered first: changes published from here on follow the snapshot.
	h.sendSnapshot(client, sess.Canvas)

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client, sess.Canvas)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client, canvas *hub.Canvas) {
	defer func() {
		h.hub.Unregister(client)
		ServerStats.DecWSConnections()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		ServerStats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "resync":
			h.sendSnapshot(client, canvas)
		case "ping":
			h.sendPong(client)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				// Hub stopped or client unregistered.
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(client *hub.Client, canvas *hub.Canvas) {
	if err := h.hub.SendTo(client, canvas.SnapshotMessage); err != nil {
		h.logger.Debug("failed to send snapshot", "client_id", client.ID, "error", err)
	}
}

func (h *WSHandler) sendPong(client *hub.Client) {
	err := h.hub.SendTo(client, func() ([]byte, error) {
		return json.Marshal(hub.Message{Type: hub.MsgPong})
	})
	if err != nil {
		h.logger.Debug("failed to send pong", "client_id", client.ID, "error", err)
	}
}
