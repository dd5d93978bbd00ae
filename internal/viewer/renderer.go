package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gtfsviewer/internal/domain"
)

// DefaultRouteColor is used when the route carries no color of its own.
const DefaultRouteColor = "#3388ff"

// ErrNoValidPoints means no shape point survived numeric conversion.
var ErrNoValidPoints = errors.New("no valid coordinates in route shape")

// Surface is the map a MapViewController draws on.
type Surface interface {
	AddPolyline(line domain.Polyline) (domain.OverlayID, error)
	AddMarker(marker domain.Marker) (domain.OverlayID, error)
	Remove(id domain.OverlayID)
	FitBounds(bounds domain.Bounds)
}

// RenderResult summarizes one render cycle.
type RenderResult struct {
	Color         string        `json:"color"`
	Points        int           `json:"points"`
	SkippedPoints int           `json:"skippedPoints"`
	Markers       int           `json:"markers"`
	SkippedStops  int           `json:"skippedStops"`
	Bounds        domain.Bounds `json:"bounds"`
}

// MapViewController owns the overlays of the current render cycle. It is not
// safe for concurrent use; Controller serializes access.
type MapViewController struct {
	surface      Surface
	defaultColor string
	logger       *slog.Logger

	line    domain.OverlayID
	markers []domain.OverlayID
}

func NewMapViewController(surface Surface, defaultColor string, logger *slog.Logger) *MapViewController {
	if defaultColor == "" {
		defaultColor = DefaultRouteColor
	}
	return &MapViewController{
		surface:      surface,
		defaultColor: defaultColor,
		logger:       logger.With("component", "map_view"),
	}
}

// Clear removes every tracked overlay. Clearing an empty map is a no-op.
func (m *MapViewController) Clear() {
	if m.line != "" {
		m.surface.Remove(m.line)
		m.line = ""
	}
	for _, id := range m.markers {
		m.surface.Remove(id)
	}
	m.markers = nil
}

// OverlayCount returns the number of overlays currently drawn.
func (m *MapViewController) OverlayCount() int {
	n := len(m.markers)
	if m.line != "" {
		n++
	}
	return n
}

// Render replaces whatever is drawn with detail. Invalid shape points and
// stops are skipped individually; a shape with no valid point aborts before
// anything is drawn. A surface failure midway is returned as is and leaves
// the overlays drawn so far tracked for the next Clear.
func (m *MapViewController) Render(detail *domain.RouteDetail) (RenderResult, error) {
	m.Clear()

	var res RenderResult
	if detail == nil {
		return res, ErrNoValidPoints
	}

	res.Color = m.routeColor(detail.Route)

	points := make([]domain.LatLng, 0, len(detail.Shape))
	for i, p := range detail.Shape {
		lat, okLat := p.Lat.Float()
		lng, okLng := p.Lng.Float()
		if !okLat || !okLng {
			res.SkippedPoints++
			m.logger.Warn("skipping invalid shape point", "index", i, "lat", p.Lat, "lng", p.Lng)
			continue
		}
		points = append(points, domain.LatLng{Lat: lat, Lng: lng})
	}

	if len(points) == 0 {
		m.logger.Info("no valid shape points", "shape_points", len(detail.Shape))
		return res, ErrNoValidPoints
	}
	res.Points = len(points)

	id, err := m.surface.AddPolyline(domain.Polyline{Points: points, Color: res.Color})
	if err != nil {
		return res, fmt.Errorf("drawing route line: %w", err)
	}
	m.line = id

	res.Bounds, _ = domain.BoundsOf(points)
	m.surface.FitBounds(res.Bounds)

	if len(detail.Stops) == 0 {
		m.logger.Warn("route has no stops, drawing line only")
	}

	for i, stop := range detail.Stops {
		lat, okLat := stop.Lat.Float()
		lng, okLng := stop.Lng.Float()
		if !okLat || !okLng {
			res.SkippedStops++
			m.logger.Warn("skipping stop with invalid coordinates",
				"index", i,
				"stop_id", stop.ID,
				"lat", stop.Lat,
				"lng", stop.Lng,
			)
			continue
		}

		id, err := m.surface.AddMarker(domain.Marker{
			Position: domain.LatLng{Lat: lat, Lng: lng},
			Label:    stop.Name,
			StopID:   stop.ID.String(),
		})
		if err != nil {
			return res, fmt.Errorf("drawing stop %q: %w", stop.ID, err)
		}
		m.markers = append(m.markers, id)
		res.Markers++
	}

	m.logger.Debug("route rendered",
		"color", res.Color,
		"points", res.Points,
		"skipped_points", res.SkippedPoints,
		"markers", res.Markers,
		"skipped_stops", res.SkippedStops,
	)
	return res, nil
}

func (m *MapViewController) routeColor(info domain.RouteInfo) string {
	c := strings.TrimSpace(info.Color)
	if c == "" {
		return m.defaultColor
	}
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	return c
}
