package analysis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
)

type sequenceRequestIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceRequestIDs) NewRequestID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("req-%d", s.next), nil
}

type requesterReply struct {
	analysis string
	err      error
}

type pendingCall struct {
	ctx   context.Context
	text  string
	reply chan requesterReply
}

func (call *pendingCall) respond(analysis string, err error) {
	call.reply <- requesterReply{analysis: analysis, err: err}
}

type blockingRequester struct {
	calls chan *pendingCall
}

func newBlockingRequester() *blockingRequester {
	return &blockingRequester{calls: make(chan *pendingCall, 8)}
}

func (r *blockingRequester) RequestAnalysis(ctx context.Context, handText string) (string, error) {
	call := &pendingCall{ctx: ctx, text: handText, reply: make(chan requesterReply, 1)}
	r.calls <- call
	reply := <-call.reply
	return reply.analysis, reply.err
}

func (r *blockingRequester) nextCall(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an analysis request")
		return nil
	}
}

func (r *blockingRequester) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-r.calls:
		t.Fatalf("unexpected analysis request for %q", call.text)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeBook struct {
	mu       sync.Mutex
	records  map[hands.HandID]hands.HandRecord
	attached []string
}

func newFakeBook(records ...hands.HandRecord) *fakeBook {
	book := &fakeBook{records: make(map[hands.HandID]hands.HandRecord)}
	for _, record := range records {
		book.records[record.ID] = record
	}
	return book
}

func (b *fakeBook) Get(id hands.HandID) (hands.HandRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[id]
	return record, ok
}

func (b *fakeBook) AttachAnalysisFor(id hands.HandID, requestedText, analysis string) (hands.HandRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[id]
	if !ok {
		return hands.HandRecord{}, hands.ErrHandNotFound
	}
	if record.Text != requestedText {
		return hands.HandRecord{}, hands.ErrStaleAnalysis
	}
	cached := analysis
	record.Analysis = &cached
	b.records[id] = record
	b.attached = append(b.attached, analysis)
	return record, nil
}

func (b *fakeBook) setText(id hands.HandID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.records[id]
	record.Text = text
	record.Analysis = nil
	b.records[id] = record
}

func (b *fakeBook) attachManually(id hands.HandID, analysis string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.records[id]
	cached := analysis
	record.Analysis = &cached
	b.records[id] = record
}

func (b *fakeBook) attachments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.attached...)
}

func newTestManager(t *testing.T, book *fakeBook, requester Requester) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{
		Hands:      book,
		Requester:  requester,
		RequestIDs: &sequenceRequestIDs{},
	})
	if err != nil {
		t.Fatalf("failed to build manager: %v", err)
	}
	return manager
}

func waitSettled(t *testing.T, manager *Manager, id hands.HandID) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snapshot, err := manager.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	return snapshot
}

func cachedRecord(id hands.HandID, text, analysis string) hands.HandRecord {
	return hands.HandRecord{ID: id, Text: text, Analysis: &analysis}
}
