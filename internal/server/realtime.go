package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventHandChanged = "hand-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "handlog-backend"
)

type RealtimeMessage struct {
	EventType string
	Change    string
	HandIDs   []hands.HandID
	Timestamp time.Time
}

func (m RealtimeMessage) payload() gin.H {
	return gin.H{
		"change":    m.Change,
		"hand_ids":  m.HandIDs,
		"timestamp": m.Timestamp.UTC().Format(time.RFC3339),
		"source":    realtimeSourceBackend,
	}
}

func heartbeatPayload(now time.Time) gin.H {
	return gin.H{
		"timestamp": now.UTC().Format(time.RFC3339),
		"source":    realtimeSourceBackend,
	}
}

// RealtimeDispatcher fans collection changes out to stream subscribers. Slow
// subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PublishHandChange adapts a collection change notification into a stream message.
func (d *RealtimeDispatcher) PublishHandChange(change hands.Change) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventHandChanged,
		Change:    string(change.Kind),
		HandIDs:   []hands.HandID{change.HandID},
		Timestamp: change.At,
	})
}

func (d *RealtimeDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
