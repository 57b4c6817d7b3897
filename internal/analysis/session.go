package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"go.uber.org/zap"
)

// State is the analysis view state for one hand.
type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Requester maps hand text to an analysis.
type Requester interface {
	RequestAnalysis(ctx context.Context, handText string) (string, error)
}

// Attacher applies a finished analysis to the hand it was requested for.
type Attacher interface {
	AttachAnalysisFor(id hands.HandID, requestedText, analysis string) (hands.HandRecord, error)
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	HandID    hands.HandID `json:"hand_id"`
	HandText  string       `json:"hand"`
	State     State        `json:"state"`
	Analysis  string       `json:"analysis,omitempty"`
	Error     string       `json:"error,omitempty"`
	Cached    bool         `json:"cached"`
	RequestID string       `json:"request_id,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type sessionConfig struct {
	record     hands.HandRecord
	requester  Requester
	attacher   Attacher
	requestIDs RequestIDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// Session tracks the analysis of a single hand. Each attempt carries a token;
// starting a new attempt cancels the previous one and a response whose token
// is no longer current is discarded.
type Session struct {
	handID     hands.HandID
	handText   string
	requester  Requester
	attacher   Attacher
	requestIDs RequestIDProvider
	clock      func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	state     State
	analysis  string
	errorText string
	cached    bool
	requestID string
	updatedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func newSession(cfg sessionConfig) *Session {
	session := &Session{
		handID:     cfg.record.ID,
		handText:   cfg.record.Text,
		requester:  cfg.requester,
		attacher:   cfg.attacher,
		requestIDs: cfg.requestIDs,
		clock:      cfg.clock,
		logger:     cfg.logger,
		state:      StateIdle,
		updatedAt:  cfg.clock(),
	}
	if cfg.record.HasAnalysis() {
		session.state = StateSucceeded
		session.analysis = cfg.record.AnalysisText()
		session.cached = true
	}
	return session
}

// Snapshot returns the current view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start issues a new request, superseding any attempt still in flight. The
// attempt outlives ctx's cancellation; it ends on completion, on the client
// timeout or when superseded.
func (s *Session) Start(ctx context.Context) Snapshot {
	requestID, err := s.requestIDs.NewRequestID()
	if err != nil {
		requestID = unknownRequestID + "-" + s.clock().UTC().Format(time.RFC3339Nano)
	}
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.state = StatePending
	s.analysis = ""
	s.errorText = ""
	s.cached = false
	s.requestID = requestID
	s.updatedAt = s.clock()
	s.cancel = cancel
	s.done = done
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	go s.run(attemptCtx, cancel, requestID, done)
	return snapshot
}

// Wait blocks until the latest attempt has finished, including attaching its
// result, or ctx ends.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done == nil {
			return s.Snapshot(), nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}

		s.mu.Lock()
		if s.done == done {
			snapshot := s.snapshotLocked()
			s.mu.Unlock()
			return snapshot, nil
		}
		s.mu.Unlock()
	}
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, requestID string, done chan struct{}) {
	defer close(done)
	defer cancel()

	result, err := s.requester.RequestAnalysis(ctx, s.handText)

	s.mu.Lock()
	if s.requestID != requestID {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded analysis response",
			zap.String("hand_id", s.handID.String()),
			zap.String("request_id", requestID))
		return
	}
	if err != nil {
		s.state = StateFailed
		s.errorText = DisplayMessage(err)
		s.updatedAt = s.clock()
		s.cancel = nil
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The view turns succeeded only once the record holds the result.
	if _, err := s.attacher.AttachAnalysisFor(s.handID, s.handText, result); err != nil {
		level := zap.WarnLevel
		if errors.Is(err, hands.ErrStaleAnalysis) || errors.Is(err, hands.ErrHandNotFound) {
			level = zap.InfoLevel
		}
		s.logger.Check(level, "analysis not attached").Write(
			zap.String("hand_id", s.handID.String()),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	s.settle(requestID, result)
}

func (s *Session) settle(requestID, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID != requestID {
		return
	}
	s.state = StateSucceeded
	s.analysis = result
	s.updatedAt = s.clock()
	s.cancel = nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		HandID:    s.handID,
		HandText:  s.handText,
		State:     s.state,
		Analysis:  s.analysis,
		Error:     s.errorText,
		Cached:    s.cached,
		RequestID: s.requestID,
		UpdatedAt: s.updatedAt,
	}
}
