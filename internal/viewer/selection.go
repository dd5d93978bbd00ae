package viewer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gtfsviewer/internal/domain"
)

// DateTimeLayout is the timestamp format the route detail endpoint expects.
const DateTimeLayout = "2006-01-02 15:04"

// Layout produced by <input type="datetime-local">.
const browserDateTimeLayout = "2006-01-02T15:04"

var (
	ErrUnknownDataset   = errors.New("unknown dataset")
	ErrUnknownRoute     = errors.New("unknown route")
	ErrDatasetRequired  = errors.New("select a dataset first")
	ErrRouteRequired    = errors.New("select a route first")
	ErrDateTimeRequired = errors.New("select a date and time first")
	ErrInvalidDateTime  = errors.New("invalid date and time")
)

// Option is one entry of a selector.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Selection tracks the chosen dataset, route and timestamp together with the
// option lists they were chosen from. It performs no I/O.
//
// The zero value is ready to use: nothing loaded, every dependent control
// disabled.
type Selection struct {
	datasets []domain.Dataset
	routes   []domain.Route

	datasetID string
	routeID   string
	datetime  string
}

// SetDatasets replaces the dataset list and drops every selection made
// against the previous one.
func (s *Selection) SetDatasets(datasets []domain.Dataset) {
	s.datasets = append([]domain.Dataset(nil), datasets...)
	s.resetDataset()
}

// SelectDataset chooses a dataset, or clears the choice when id is empty.
// Any change discards the route list and disables the route, date/time and
// view controls.
func (s *Selection) SelectDataset(id string) error {
	if id != "" && !s.hasDataset(id) {
		return fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	s.resetDataset()
	s.datasetID = id
	return nil
}

// SetRoutes installs the route list fetched for datasetID. It reports false
// and changes nothing when the selection moved to another dataset meanwhile.
func (s *Selection) SetRoutes(datasetID string, routes []domain.Route) bool {
	if datasetID == "" || datasetID != s.datasetID {
		return false
	}
	s.routes = append([]domain.Route(nil), routes...)
	s.routeID = ""
	s.datetime = ""
	return true
}

func (s *Selection) SelectRoute(id string) error {
	if s.datasetID == "" {
		return ErrDatasetRequired
	}
	if id == "" {
		s.routeID = ""
		s.datetime = ""
		return nil
	}
	if !s.hasRoute(id) {
		return fmt.Errorf("%w: %q", ErrUnknownRoute, id)
	}
	s.routeID = id
	return nil
}

// SetDateTime validates and stores the timestamp. Both "YYYY-MM-DD HH:mm"
// and the browser's "YYYY-MM-DDTHH:mm" are accepted; the stored form is
// always the former.
func (s *Selection) SetDateTime(value string) error {
	if s.routeID == "" {
		return ErrRouteRequired
	}
	value = strings.TrimSpace(value)
	if value == "" {
		s.datetime = ""
		return nil
	}
	normalized, err := NormalizeDateTime(value)
	if err != nil {
		return err
	}
	s.datetime = normalized
	return nil
}

func (s *Selection) DatasetID() string { return s.datasetID }
func (s *Selection) RouteID() string   { return s.routeID }
func (s *Selection) DateTime() string  { return s.datetime }

// DatasetEnabled reports whether the dataset selector has anything to offer.
func (s *Selection) DatasetEnabled() bool { return len(s.datasets) > 0 }

func (s *Selection) RouteEnabled() bool { return s.datasetID != "" && len(s.routes) > 0 }

func (s *Selection) DateTimeEnabled() bool { return s.routeID != "" }

func (s *Selection) ViewEnabled() bool { return s.routeID != "" }

func (s *Selection) DatasetOptions() []Option {
	opts := make([]Option, 0, len(s.datasets))
	for _, d := range s.datasets {
		label := d.Name
		if label == "" {
			label = d.ID.String()
		}
		opts = append(opts, Option{Value: d.ID.String(), Label: label})
	}
	return opts
}

func (s *Selection) RouteOptions() []Option {
	opts := make([]Option, 0, len(s.routes))
	for _, r := range s.routes {
		opts = append(opts, Option{Value: r.ID.String(), Label: r.Label()})
	}
	return opts
}

func (s *Selection) resetDataset() {
	s.datasetID = ""
	s.routes = nil
	s.routeID = ""
	s.datetime = ""
}

func (s *Selection) hasDataset(id string) bool {
	for _, d := range s.datasets {
		if d.ID.String() == id {
			return true
		}
	}
	return false
}

func (s *Selection) hasRoute(id string) bool {
	for _, r := range s.routes {
		if r.ID.String() == id {
			return true
		}
	}
	return false
}

// NormalizeDateTime parses value in either accepted layout and renders it in
// DateTimeLayout.
func NormalizeDateTime(value string) (string, error) {
	for _, layout := range []string{DateTimeLayout, browserDateTimeLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateTimeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q, expected YYYY-MM-DD HH:mm", ErrInvalidDateTime, value)
}
