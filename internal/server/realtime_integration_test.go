package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
)

func TestEventStreamEmitsHandChangeEvents(t *testing.T) {
	env := newTestEnvironment(t, &stubRequester{analysis: "Solid call."})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	streamResp, err := http.Get(server.URL + "/events")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	if !strings.HasPrefix(streamResp.Header.Get("Content-Type"), contentTypeEventStream) {
		t.Fatalf("unexpected content type %q", streamResp.Header.Get("Content-Type"))
	}

	createResp, err := http.Post(server.URL+"/hands", "application/json", bytes.NewBufferString(`{"text":"Hero BB raise"}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", createResp.StatusCode)
	}
	var created struct {
		Hand struct {
			ID hands.HandID `json:"id"`
		} `json:"hand"`
	}
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	_ = createResp.Body.Close()

	type eventPayload struct {
		Change  string         `json:"change"`
		HandIDs []hands.HandID `json:"hand_ids"`
	}
	type readResult struct {
		line string
		err  error
	}

	streamReader := bufio.NewReader(streamResp.Body)
	currentEventType := ""
	deadline := time.After(5 * time.Second)
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for hand change event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventHandChanged {
				continue
			}
			var payload eventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if payload.Change != string(hands.ChangeCreated) {
				t.Fatalf("unexpected change kind %q", payload.Change)
			}
			if len(payload.HandIDs) != 1 || payload.HandIDs[0] != created.Hand.ID {
				t.Fatalf("unexpected hand identifiers: %#v", payload.HandIDs)
			}
			return
		}
	}
}

func TestEventStreamUnavailableWithoutDispatcher(t *testing.T) {
	env := newTestEnvironment(t, &stubRequester{})
	handler, err := NewHTTPHandler(Dependencies{Hands: env.collection, Analysis: env.manager})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/events", http.NoBody))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable, got %d", recorder.Code)
	}
}
