package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/analysis"
	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type discardScheduler struct{}

func (discardScheduler) Schedule([]hands.HandRecord) {}

type stubRequester struct {
	mu       sync.Mutex
	analysis string
	err      error
	texts    []string
	release  chan struct{}
}

func (s *stubRequester) RequestAnalysis(_ context.Context, handText string) (string, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, handText)
	return s.analysis, s.err
}

func (s *stubRequester) requestedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type testEnvironment struct {
	handler    http.Handler
	collection *hands.Collection
	manager    *analysis.Manager
	realtime   *RealtimeDispatcher
	requester  *stubRequester
}

func newTestEnvironment(t *testing.T, requester *stubRequester) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dispatcher := NewRealtimeDispatcher()
	collection, err := hands.NewCollection(hands.CollectionConfig{
		Scheduler: discardScheduler{},
		Location:  time.UTC,
		OnChange:  dispatcher.PublishHandChange,
	})
	if err != nil {
		t.Fatalf("failed to build collection: %v", err)
	}
	manager, err := analysis.NewManager(analysis.ManagerConfig{
		Hands:     collection,
		Requester: requester,
	})
	if err != nil {
		t.Fatalf("failed to build analysis manager: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Hands:             collection,
		Analysis:          manager,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		WaitTimeout:       2 * time.Second,
		HeartbeatInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testEnvironment{
		handler:    handler,
		collection: collection,
		manager:    manager,
		realtime:   dispatcher,
		requester:  requester,
	}
}

func (env *testEnvironment) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

type handPayload struct {
	ID       hands.HandID `json:"id"`
	Text     string       `json:"text"`
	Date     string       `json:"date"`
	Time     string       `json:"time"`
	Analysis *string      `json:"analysis"`
}

type snapshotPayload struct {
	HandID    int64  `json:"hand_id"`
	State     string `json:"state"`
	Analysis  string `json:"analysis"`
	Error     string `json:"error"`
	Cached    bool   `json:"cached"`
	RequestID string `json:"request_id"`
}

type handEnvelope struct {
	Hand     handPayload      `json:"hand"`
	Analysis *snapshotPayload `json:"analysis"`
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
