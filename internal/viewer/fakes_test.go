package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"gtfsviewer/internal/domain"
	"gtfsviewer/pkg/gtfsapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSurface records what is currently drawn.
type fakeSurface struct {
	mu        sync.Mutex
	next      int
	polylines map[domain.OverlayID]domain.Polyline
	markers   map[domain.OverlayID]domain.Marker
	fits      []domain.Bounds
	removed   int
	failLine  bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		polylines: make(map[domain.OverlayID]domain.Polyline),
		markers:   make(map[domain.OverlayID]domain.Marker),
	}
}

func (s *fakeSurface) AddPolyline(line domain.Polyline) (domain.OverlayID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLine {
		return "", errors.New("surface unavailable")
	}
	s.next++
	id := domain.OverlayID(fmt.Sprintf("line-%d", s.next))
	s.polylines[id] = line
	return id, nil
}

func (s *fakeSurface) AddMarker(m domain.Marker) (domain.OverlayID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := domain.OverlayID(fmt.Sprintf("stop-%d", s.next))
	s.markers[id] = m
	return id, nil
}

func (s *fakeSurface) Remove(id domain.OverlayID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.polylines, id)
	delete(s.markers, id)
	s.removed++
}

func (s *fakeSurface) FitBounds(b domain.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits = append(s.fits, b)
}

func (s *fakeSurface) lines() []domain.Polyline {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Polyline, 0, len(s.polylines))
	for _, l := range s.polylines {
		out = append(out, l)
	}
	return out
}

func (s *fakeSurface) stops() []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Marker, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, m)
	}
	return out
}

// fakeFetcher serves canned answers. A non-nil gate makes RouteDetail or
// Upload wait for a value before answering, and entered is signalled once
// the call has started.
type fakeFetcher struct {
	mu sync.Mutex

	datasets    []domain.Dataset
	datasetsErr error
	routes      map[string][]domain.Route
	routesErr   error
	detail      *domain.RouteDetail
	detailErr   error
	uploadRes   *gtfsapi.UploadResult
	uploadErr   error

	detailGate chan struct{}
	uploadGate chan struct{}
	entered    chan struct{}

	datasetCalls int
	detailCalls  int
	uploadCalls  int
	uploaded     string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		datasets: []domain.Dataset{{ID: "1", Name: "Metro Transit"}},
		routes: map[string][]domain.Route{
			"1": {
				{ID: "42", ShortName: "42", LongName: "Crosstown"},
				{ID: "7", LongName: "Harbor Shuttle"},
			},
		},
		detail: &domain.RouteDetail{
			Shape: []domain.ShapePoint{
				{Lat: "45.0", Lng: "-93.0"},
				{Lat: "45.1", Lng: "-93.1"},
			},
			Stops: []domain.Stop{
				{ID: "s1", Name: "Main St", Lat: "45.05", Lng: "-93.05"},
			},
		},
		uploadRes: &gtfsapi.UploadResult{Success: true, FolderID: "2"},
		entered:   make(chan struct{}, 8),
	}
}

func (f *fakeFetcher) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasetCalls++
	if f.datasetsErr != nil {
		return nil, f.datasetsErr
	}
	return append([]domain.Dataset(nil), f.datasets...), nil
}

func (f *fakeFetcher) ListRoutes(ctx context.Context, datasetID string) ([]domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routesErr != nil {
		return nil, f.routesErr
	}
	return append([]domain.Route(nil), f.routes[datasetID]...), nil
}

func (f *fakeFetcher) RouteDetail(ctx context.Context, datasetID, routeID, datetime string) (*domain.RouteDetail, error) {
	f.mu.Lock()
	f.detailCalls++
	gate := f.detailGate
	detail, err := f.detail, f.detailErr
	f.mu.Unlock()

	if gate != nil {
		f.entered <- struct{}{}
		<-gate
	}
	return detail, err
}

func (f *fakeFetcher) Upload(ctx context.Context, filename string, r io.Reader) (*gtfsapi.UploadResult, error) {
	f.mu.Lock()
	f.uploadCalls++
	f.uploaded = filename
	gate := f.uploadGate
	res, err := f.uploadRes, f.uploadErr
	f.mu.Unlock()

	if gate != nil {
		f.entered <- struct{}{}
		<-gate
	}
	return res, err
}

func (f *fakeFetcher) set(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeFetcher) calls() (datasets, details, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.datasetCalls, f.detailCalls, f.uploadCalls
}

func datasetFixture(id, name string) domain.Dataset {
	return domain.Dataset{ID: domain.ID(id), Name: name}
}
