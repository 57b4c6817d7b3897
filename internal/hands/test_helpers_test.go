package hands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/kvstore"
)

type recordingScheduler struct {
	mu        sync.Mutex
	snapshots [][]HandRecord
}

func (s *recordingScheduler) Schedule(records []HandRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, records)
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *recordingScheduler) last() []HandRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

type memorySlots struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	writes int
}

func newMemorySlots() *memorySlots {
	return &memorySlots{values: make(map[string]string)}
}

func (m *memorySlots) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return "", kvstore.ErrSlotNotFound
	}
	return value, nil
}

func (m *memorySlots) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.writes++
	return nil
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock(start time.Time) *steppingClock {
	return &steppingClock{now: start}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

var errSlotUnavailable = errors.New("slot unavailable")

func newTestCollection(t *testing.T, clock *steppingClock, records ...HandRecord) (*Collection, *recordingScheduler) {
	t.Helper()
	scheduler := &recordingScheduler{}
	collection, err := NewCollection(CollectionConfig{
		Records:   records,
		Scheduler: scheduler,
		Clock:     clock.Now,
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("unexpected collection error: %v", err)
	}
	return collection, scheduler
}

func mustCreate(t *testing.T, collection *Collection, text string) HandRecord {
	t.Helper()
	record, err := collection.Create(text)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return record
}

func stringPointer(value string) *string {
	return &value
}
