package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twpayne/go-polyline"

	"gtfsviewer/internal/domain"
)

// Message types sent to the browser.
const (
	MsgPolyline = "polyline"
	MsgMarker   = "marker"
	MsgRemove   = "remove"
	MsgFit      = "fit"
	MsgSnapshot = "snapshot"
	MsgPong     = "pong"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// PolylinePayload carries the line as a Google encoded polyline.
type PolylinePayload struct {
	ID     domain.OverlayID `json:"id"`
	Color  string           `json:"color"`
	Points string           `json:"points"`
	Length int              `json:"length"`
}

type MarkerPayload struct {
	ID     domain.OverlayID `json:"id"`
	Lat    float64          `json:"lat"`
	Lng    float64          `json:"lng"`
	Label  string           `json:"label"`
	StopID string           `json:"stopId,omitempty"`
}

type RemovePayload struct {
	ID domain.OverlayID `json:"id"`
}

type SnapshotPayload struct {
	Polylines []PolylinePayload `json:"polylines"`
	Markers   []MarkerPayload   `json:"markers"`
	Bounds    *domain.Bounds    `json:"bounds,omitempty"`
}

// Canvas is the server-side record of what one session has on its map. It
// implements the surface the renderer draws on and mirrors every change to
// the session's websocket clients.
type Canvas struct {
	sessionID string
	publisher Publisher

	mu        sync.Mutex
	next      uint64
	polylines map[domain.OverlayID]PolylinePayload
	markers   map[domain.OverlayID]MarkerPayload
	order     []domain.OverlayID
	bounds    *domain.Bounds
}

// Publisher delivers encoded messages to a session.
type Publisher interface {
	Publish(sessionID string, data []byte)
}

func NewCanvas(sessionID string, publisher Publisher) *Canvas {
	return &Canvas{
		sessionID: sessionID,
		publisher: publisher,
		polylines: make(map[domain.OverlayID]PolylinePayload),
		markers:   make(map[domain.OverlayID]MarkerPayload),
	}
}

func (c *Canvas) AddPolyline(line domain.Polyline) (domain.OverlayID, error) {
	if len(line.Points) == 0 {
		return "", fmt.Errorf("polyline has no points")
	}

	coords := make([][]float64, 0, len(line.Points))
	for _, p := range line.Points {
		coords = append(coords, []float64{p.Lat, p.Lng})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID("line")
	payload := PolylinePayload{
		ID:     id,
		Color:  line.Color,
		Points: string(polyline.EncodeCoords(coords)),
		Length: len(coords),
	}
	if err := c.publish(MsgPolyline, payload); err != nil {
		return "", err
	}
	c.polylines[id] = payload
	c.order = append(c.order, id)
	return id, nil
}

func (c *Canvas) AddMarker(marker domain.Marker) (domain.OverlayID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID("stop")
	payload := MarkerPayload{
		ID:     id,
		Lat:    marker.Position.Lat,
		Lng:    marker.Position.Lng,
		Label:  marker.Label,
		StopID: marker.StopID,
	}
	if err := c.publish(MsgMarker, payload); err != nil {
		return "", err
	}
	c.markers[id] = payload
	c.order = append(c.order, id)
	return id, nil
}

func (c *Canvas) Remove(id domain.OverlayID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, isLine := c.polylines[id]
	_, isMarker := c.markers[id]
	if !isLine && !isMarker {
		return
	}
	delete(c.polylines, id)
	delete(c.markers, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if len(c.order) == 0 {
		c.bounds = nil
	}
	_ = c.publish(MsgRemove, RemovePayload{ID: id})
}

func (c *Canvas) FitBounds(bounds domain.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := bounds
	c.bounds = &b
	_ = c.publish(MsgFit, b)
}

// Len returns the number of overlays on the canvas.
func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Snapshot returns the current canvas in drawing order.
func (c *Canvas) Snapshot() SnapshotPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := SnapshotPayload{
		Polylines: []PolylinePayload{},
		Markers:   []MarkerPayload{},
	}
	for _, id := range c.order {
		if p, ok := c.polylines[id]; ok {
			snap.Polylines = append(snap.Polylines, p)
		} else if m, ok := c.markers[id]; ok {
			snap.Markers = append(snap.Markers, m)
		}
	}
	if c.bounds != nil {
		b := *c.bounds
		snap.Bounds = &b
	}
	return snap
}

// SnapshotMessage encodes Snapshot as a message ready to send.
func (c *Canvas) SnapshotMessage() ([]byte, error) {
	return json.Marshal(Message{Type: MsgSnapshot, Payload: c.Snapshot()})
}

func (c *Canvas) nextID(prefix string) domain.OverlayID {
	c.next++
	return domain.OverlayID(fmt.Sprintf("%s-%d", prefix, c.next))
}

func (c *Canvas) publish(msgType string, payload any) error {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msgType, err)
	}
	if c.publisher != nil {
		c.publisher.Publish(c.sessionID, data)
	}
	return nil
}
