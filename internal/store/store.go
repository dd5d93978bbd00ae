package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gtfsviewer/internal/hub"
	"gtfsviewer/internal/viewer"
)

// Session is one browser's view state.
type Session struct {
	ID         string
	Controller *viewer.Controller
	Canvas     *hub.Canvas
	CreatedAt  time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Persister stores selections across restarts.
type Persister interface {
	SaveSelection(ctx context.Context, sessionID string, snap viewer.SelectionSnapshot) error
	LoadSelection(ctx context.Context, sessionID string) (viewer.SelectionSnapshot, bool, error)
	DeleteSelection(ctx context.Context, sessionID string) error
}

// Factory builds the controller and canvas for a new session id.
type Factory func(id string) (*viewer.Controller, *hub.Canvas)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory   Factory
	persister Persister
	idleAfter time.Duration
	logger    *slog.Logger
}

// New creates a session store. persister may be nil.
func New(factory Factory, persister Persister, idleAfter time.Duration, logger *slog.Logger) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		factory:   factory,
		persister: persister,
		idleAfter: idleAfter,
		logger:    logger.With("component", "session_store"),
	}
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.touch(time.Now())
	}
	return sess, ok
}

// Resolve returns the session for id, creating it when id is unknown or
// empty; created tells the caller to hand the id to the browser. A new
// session is restored from its persisted selection when there is one and
// otherwise starts with a fresh dataset list.
func (s *Store) Resolve(ctx context.Context, id string) (sess *Session, created bool) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false
		}
		if _, err := uuid.Parse(id); err != nil {
			id = ""
		}
	}
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		existing.touch(time.Now())
		return existing, false
	}
	sess = s.newSession(id)
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.logger.Debug("session created", "session_id", id, "total", count)

	if s.persister != nil && s.restore(ctx, sess) {
		return sess, true
	}
	if err := sess.Controller.LoadDatasets(ctx); err != nil {
		s.logger.Warn("initial dataset load failed", "session_id", id, "error", err)
	}
	return sess, true
}

func (s *Store) newSession(id string) *Session {
	controller, canvas := s.factory(id)
	now := time.Now()
	sess := &Session{
		ID:         id,
		Controller: controller,
		Canvas:     canvas,
		CreatedAt:  now,
		lastSeen:   now,
	}

	if s.persister != nil {
		controller.OnSelect(func(snap viewer.SelectionSnapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			// Nothing selected: a restart should start from a fresh session.
			if snap.DatasetID == "" {
				if err := s.persister.DeleteSelection(ctx, id); err != nil {
					s.logger.Warn("failed to drop persisted selection", "session_id", id, "error", err)
				}
				return
			}
			if err := s.persister.SaveSelection(ctx, id, snap); err != nil {
				s.logger.Warn("failed to persist selection", "session_id", id, "error", err)
			}
		})
	}
	return sess
}

func (s *Store) restore(ctx context.Context, sess *Session) bool {
	snap, found, err := s.persister.LoadSelection(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("failed to load persisted selection", "session_id", sess.ID, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := sess.Controller.Restore(ctx, snap); err != nil {
		s.logger.Warn("failed to restore selection", "session_id", sess.ID, "error", err)
		return true
	}
	s.logger.Info("session restored",
		"session_id", sess.ID,
		"dataset_id", snap.DatasetID,
		"route_id", snap.RouteID,
	)
	return true
}

// PruneIdle drops sessions not seen within the idle window and returns
// their ids.
func (s *Store) PruneIdle() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.idleAfter)
	var pruned []string

	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			sess.Controller.ClearMap()
			delete(s.sessions, id)
			pruned = append(pruned, id)
		}
	}
	return pruned
}

// Run prunes idle sessions until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.idleAfter / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := s.PruneIdle(); len(pruned) > 0 {
				s.logger.Info("pruned idle sessions", "count", len(pruned), "remaining", s.Count())
			}
		}
	}
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
