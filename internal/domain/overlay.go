package domain

// Polyline is a single connecting line through ordered points.
type Polyline struct {
	Points []LatLng `json:"points"`
	Color  string   `json:"color"`
}

// Marker is a point with a label revealed when the marker is clicked.
type Marker struct {
	Position LatLng `json:"position"`
	Label    string `json:"label"`
	StopID   string `json:"stopId,omitempty"`
}

// OverlayID identifies a drawn overlay on a map surface.
type OverlayID string
