package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsviewer/internal/domain"
	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/viewer"
	"gtfsviewer/pkg/gtfsapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct{}

func (stubFetcher) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	return []domain.Dataset{{ID: "1", Name: "Metro Transit"}}, nil
}

func (stubFetcher) ListRoutes(ctx context.Context, datasetID string) ([]domain.Route, error) {
	return []domain.Route{{ID: "42", ShortName: "42", LongName: "Crosstown"}}, nil
}

func (stubFetcher) RouteDetail(ctx context.Context, datasetID, routeID, datetime string) (*domain.RouteDetail, error) {
	return nil, gtfsapi.ErrNoShape
}

func (stubFetcher) Upload(ctx context.Context, filename string, r io.Reader) (*gtfsapi.UploadResult, error) {
	return &gtfsapi.UploadResult{Success: true}, nil
}

type memPersister struct {
	mu      sync.Mutex
	saved   map[string]viewer.SelectionSnapshot
	loadErr error
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string]viewer.SelectionSnapshot)}
}

func (p *memPersister) SaveSelection(ctx context.Context, sessionID string, snap viewer.SelectionSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[sessionID] = snap
	return nil
}

func (p *memPersister) LoadSelection(ctx context.Context, sessionID string) (viewer.SelectionSnapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return viewer.SelectionSnapshot{}, false, p.loadErr
	}
	snap, ok := p.saved[sessionID]
	return snap, ok, nil
}

func (p *memPersister) DeleteSelection(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.saved, sessionID)
	return nil
}

func (p *memPersister) get(id string) (viewer.SelectionSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.saved[id]
	return snap, ok
}

func testFactory(id string) (*viewer.Controller, *hub.Canvas) {
	canvas := hub.NewCanvas(id, nil)
	view := viewer.NewMapViewController(canvas, "", testLogger())
	return viewer.NewController(stubFetcher{}, view, testLogger()), canvas
}

func TestResolveCreatesSession(t *testing.T) {
	s := New(testFactory, nil, time.Hour, testLogger())

	sess, created := s.Resolve(context.Background(), "")
	require.True(t, created)
	_, err := uuid.Parse(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Count())

	// New sessions start with the dataset list loaded.
	assert.True(t, sess.Controller.State().DatasetEnabled)

	again, created := s.Resolve(context.Background(), sess.ID)
	assert.False(t, created)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, s.Count())
}

func TestResolveReplacesInvalidID(t *testing.T) {
	s := New(testFactory, nil, time.Hour, testLogger())

	sess, created := s.Resolve(context.Background(), "not-a-uuid")
	require.True(t, created)
	assert.NotEqual(t, "not-a-uuid", sess.ID)
}

func TestResolveKeepsUnknownValidID(t *testing.T) {
	s := New(testFactory, nil, time.Hour, testLogger())
	id := uuid.New().String()

	sess, created := s.Resolve(context.Background(), id)
	require.True(t, created)
	assert.Equal(t, id, sess.ID)
}

func TestSelectionIsPersistedAndRestored(t *testing.T) {
	persister := newMemPersister()
	ctx := context.Background()

	first := New(testFactory, persister, time.Hour, testLogger())
	sess, _ := first.Resolve(ctx, "")
	require.NoError(t, sess.Controller.SelectDataset(ctx, "1"))
	require.NoError(t, sess.Controller.SelectRoute("42"))
	require.NoError(t, sess.Controller.SetDateTime("2024-03-01 08:30"))

	saved, ok := persister.get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, viewer.SelectionSnapshot{DatasetID: "1", RouteID: "42", DateTime: "2024-03-01 08:30"}, saved)

	// A fresh store stands in for a restarted server.
	second := New(testFactory, persister, time.Hour, testLogger())
	restored, created := second.Resolve(ctx, sess.ID)
	require.True(t, created)

	state := restored.Controller.State()
	assert.Equal(t, "1", state.DatasetID)
	assert.Equal(t, "42", state.RouteID)
	assert.Equal(t, "2024-03-01 08:30", state.DateTime)
}

func TestClearedSelectionIsDropped(t *testing.T) {
	persister := newMemPersister()
	ctx := context.Background()

	s := New(testFactory, persister, time.Hour, testLogger())
	sess, _ := s.Resolve(ctx, "")
	require.NoError(t, sess.Controller.SelectDataset(ctx, "1"))

	_, ok := persister.get(sess.ID)
	require.True(t, ok)

	require.NoError(t, sess.Controller.SelectDataset(ctx, ""))

	_, ok = persister.get(sess.ID)
	assert.False(t, ok)
}

func TestRestoreFailureFallsBackToFreshSession(t *testing.T) {
	persister := newMemPersister()
	persister.loadErr = errors.New("redis down")

	s := New(testFactory, persister, time.Hour, testLogger())
	sess, created := s.Resolve(context.Background(), uuid.New().String())
	require.True(t, created)

	state := sess.Controller.State()
	assert.True(t, state.DatasetEnabled)
	assert.Empty(t, state.DatasetID)
}

func TestPruneIdle(t *testing.T) {
	s := New(testFactory, nil, 50*time.Millisecond, testLogger())
	ctx := context.Background()

	stale, _ := s.Resolve(ctx, "")
	time.Sleep(80 * time.Millisecond)
	fresh, _ := s.Resolve(ctx, "")

	pruned := s.PruneIdle()
	assert.Equal(t, []string{stale.ID}, pruned)
	assert.Equal(t, 1, s.Count())

	_, ok := s.Get(stale.ID)
	assert.False(t, ok)
	_, ok = s.Get(fresh.ID)
	assert.True(t, ok)
}

func TestGetRefreshesLastSeen(t *testing.T) {
	s := New(testFactory, nil, time.Hour, testLogger())
	sess, _ := s.Resolve(context.Background(), "")

	before := sess.LastSeen()
	time.Sleep(5 * time.Millisecond)
	_, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.True(t, sess.LastSeen().After(before))
}
