package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"go.uber.org/zap"
)

var (
	errMissingHands     = errors.New("hand book is required")
	errMissingRequester = errors.New("requester is required")
)

// HandBook is the part of the hand collection the analysis views rely on.
type HandBook interface {
	Get(id hands.HandID) (hands.HandRecord, bool)
	Attacher
}

// ManagerConfig bundles the dependencies of a Manager.
type ManagerConfig struct {
	Hands      HandBook
	Requester  Requester
	RequestIDs RequestIDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Manager keeps one analysis session per open hand view.
type Manager struct {
	hands      HandBook
	requester  Requester
	requestIDs RequestIDProvider
	clock      func() time.Time
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[hands.HandID]*Session
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Hands == nil {
		return nil, errMissingHands
	}
	if cfg.Requester == nil {
		return nil, errMissingRequester
	}
	requestIDs := cfg.RequestIDs
	if requestIDs == nil {
		requestIDs = NewUUIDRequestIDs()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		hands:      cfg.Hands,
		requester:  cfg.Requester,
		requestIDs: requestIDs,
		clock:      clock,
		logger:     logger,
		sessions:   make(map[hands.HandID]*Session),
	}, nil
}

// Open shows the analysis view for a hand. A cached analysis is shown without
// a network call; otherwise a request starts immediately. Reopening a hand whose
// view is pending for the same text joins that request.
func (m *Manager) Open(ctx context.Context, id hands.HandID) (Snapshot, error) {
	record, ok := m.hands.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %d", hands.ErrHandNotFound, id)
	}

	m.mu.Lock()
	existing := m.sessions[id]
	if existing != nil {
		snapshot := existing.Snapshot()
		if snapshot.HandText == record.Text && reusableView(snapshot, record) {
			m.mu.Unlock()
			return snapshot, nil
		}
	}
	session := m.newSessionLocked(record)
	m.mu.Unlock()

	if record.HasAnalysis() {
		return session.Snapshot(), nil
	}
	return session.Start(ctx), nil
}

// reusableView reports whether an open view still reflects the record. A
// succeeded view is stale once the record's cached analysis was cleared or
// replaced.
func reusableView(snapshot Snapshot, record hands.HandRecord) bool {
	switch snapshot.State {
	case StatePending:
		return true
	case StateSucceeded:
		return record.HasAnalysis() && record.AnalysisText() == snapshot.Analysis
	default:
		return false
	}
}

// Redo requests a fresh analysis for a hand regardless of its current state.
func (m *Manager) Redo(ctx context.Context, id hands.HandID) (Snapshot, error) {
	record, ok := m.hands.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %d", hands.ErrHandNotFound, id)
	}

	m.mu.Lock()
	session := m.sessions[id]
	if session == nil || session.handText != record.Text {
		session = m.newSessionLocked(record)
	}
	m.mu.Unlock()

	return session.Start(ctx), nil
}

// Status returns the view state for a hand, if a view is open.
func (m *Manager) Status(id hands.HandID) (Snapshot, bool) {
	m.mu.Lock()
	session := m.sessions[id]
	m.mu.Unlock()
	if session == nil {
		return Snapshot{}, false
	}
	return session.Snapshot(), true
}

// Wait blocks until the open view for a hand is no longer pending.
func (m *Manager) Wait(ctx context.Context, id hands.HandID) (Snapshot, error) {
	m.mu.Lock()
	session := m.sessions[id]
	m.mu.Unlock()
	if session == nil {
		return Snapshot{}, fmt.Errorf("%w: no open analysis view for %d", hands.ErrHandNotFound, id)
	}
	return session.Wait(ctx)
}

// Dismiss closes the view for a hand. A request still in flight is left to
// finish and its result is attached if it succeeds.
func (m *Manager) Dismiss(id hands.HandID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *Manager) newSessionLocked(record hands.HandRecord) *Session {
	session := newSession(sessionConfig{
		record:     record,
		requester:  m.requester,
		attacher:   m.hands,
		requestIDs: m.requestIDs,
		clock:      m.clock,
		logger:     m.logger,
	})
	m.sessions[record.ID] = session
	return session
}
