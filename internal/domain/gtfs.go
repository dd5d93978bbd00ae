package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ID is an identifier the upstream API may send as a JSON string or a JSON
// number. It is always held as a string so that "42" and 42 compare equal.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	// Keep the literal number text so 42 becomes "42", not "42.0".
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Coord is a raw coordinate value. The upstream API emits numbers, but
// older feeds stringify every CSV column, so both forms are accepted and
// conversion is deferred to the renderer.
type Coord string

func (c *Coord) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Coord(s)
		return nil
	}
	*c = Coord(data)
	return nil
}

func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// Float converts the coordinate, reporting false for empty, unparseable or
// non-finite values.
func (c Coord) Float() (float64, bool) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Dataset is one uploaded GTFS feed as listed by the upstream API.
type Dataset struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Route is a transit route of a dataset.
type Route struct {
	ID        ID     `json:"route_id"`
	ShortName string `json:"route_short_name,omitempty"`
	LongName  string `json:"route_long_name"`
}

// Label is the text shown in the route selector.
func (r Route) Label() string {
	short := strings.TrimSpace(r.ShortName)
	if short == "" {
		return r.LongName
	}
	return short + " - " + r.LongName
}

// RouteInfo carries the route metadata returned with a route detail.
type RouteInfo struct {
	ID        ID     `json:"route_id,omitempty"`
	ShortName string `json:"route_short_name,omitempty"`
	LongName  string `json:"route_long_name,omitempty"`
	Color     string `json:"route_color,omitempty"`
	TextColor string `json:"route_text_color,omitempty"`
}

// ShapePoint is a single point of a route shape, in path order.
type ShapePoint struct {
	Lat Coord `json:"lat"`
	Lng Coord `json:"lng"`
}

// Stop is a stop served by the route.
type Stop struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Lat  Coord  `json:"lat"`
	Lng  Coord  `json:"lng"`
}

// RouteDetail is the payload needed to draw one route.
type RouteDetail struct {
	Route RouteInfo    `json:"route"`
	Shape []ShapePoint `json:"shape"`
	Stops []Stop       `json:"stops"`
}

// LatLng is a validated geographic position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds represents a geographic rectangle
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// BoundsOf returns the smallest rectangle covering every point. ok is false
// for an empty slice.
func BoundsOf(points []LatLng) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b, true
}
