package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"gtfsviewer/internal/domain"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	raw      []json.RawMessage
}

func (p *recordingPublisher) Publish(sessionID string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err == nil {
		p.messages = append(p.messages, Message{Type: msg.Type})
		p.raw = append(p.raw, msg.Payload)
	}
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Type)
	}
	return out
}

func TestCanvasPublishesChanges(t *testing.T) {
	pub := &recordingPublisher{}
	canvas := NewCanvas("s1", pub)

	lineID, err := canvas.AddPolyline(domain.Polyline{
		Points: []domain.LatLng{{Lat: 45.0, Lng: -93.0}, {Lat: 45.1, Lng: -93.1}},
		Color:  "#3388ff",
	})
	require.NoError(t, err)

	markerID, err := canvas.AddMarker(domain.Marker{
		Position: domain.LatLng{Lat: 45.05, Lng: -93.05},
		Label:    "Main St",
		StopID:   "s1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, lineID, markerID)

	canvas.FitBounds(domain.Bounds{MinLat: 45, MaxLat: 45.1, MinLng: -93.1, MaxLng: -93})
	assert.Equal(t, 2, canvas.Len())

	canvas.Remove(markerID)
	canvas.Remove(lineID)
	canvas.Remove(lineID)
	assert.Zero(t, canvas.Len())

	assert.Equal(t, []string{MsgPolyline, MsgMarker, MsgFit, MsgRemove, MsgRemove}, pub.types())
}

func TestCanvasEncodesPolyline(t *testing.T) {
	pub := &recordingPublisher{}
	canvas := NewCanvas("s1", pub)

	points := []domain.LatLng{{Lat: 38.5, Lng: -120.2}, {Lat: 40.7, Lng: -120.95}, {Lat: 43.252, Lng: -126.453}}
	_, err := canvas.AddPolyline(domain.Polyline{Points: points, Color: "#FF0000"})
	require.NoError(t, err)

	var payload PolylinePayload
	require.NoError(t, json.Unmarshal(pub.raw[0], &payload))
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", payload.Points)
	assert.Equal(t, 3, payload.Length)
	assert.Equal(t, "#FF0000", payload.Color)

	coords, _, err := polyline.DecodeCoords([]byte(payload.Points))
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.InDelta(t, 43.252, coords[2][0], 1e-5)
	assert.InDelta(t, -126.453, coords[2][1], 1e-5)
}

func TestCanvasRejectsEmptyPolyline(t *testing.T) {
	canvas := NewCanvas("s1", nil)
	_, err := canvas.AddPolyline(domain.Polyline{})
	assert.Error(t, err)
	assert.Zero(t, canvas.Len())
}

func TestCanvasSnapshot(t *testing.T) {
	canvas := NewCanvas("s1", nil)

	snap := canvas.Snapshot()
	assert.Empty(t, snap.Polylines)
	assert.Empty(t, snap.Markers)
	assert.Nil(t, snap.Bounds)

	_, err := canvas.AddPolyline(domain.Polyline{Points: []domain.LatLng{{Lat: 1, Lng: 2}}, Color: "#000000"})
	require.NoError(t, err)
	_, err = canvas.AddMarker(domain.Marker{Position: domain.LatLng{Lat: 1, Lng: 2}, Label: "A"})
	require.NoError(t, err)
	canvas.FitBounds(domain.Bounds{MinLat: 1, MaxLat: 1, MinLng: 2, MaxLng: 2})

	snap = canvas.Snapshot()
	require.Len(t, snap.Polylines, 1)
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, "A", snap.Markers[0].Label)
	require.NotNil(t, snap.Bounds)

	data, err := canvas.SnapshotMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string          `json:"type"`
		Payload SnapshotPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MsgSnapshot, msg.Type)
	assert.Len(t, msg.Payload.Polylines, 1)
}
