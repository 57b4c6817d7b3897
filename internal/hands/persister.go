package hands

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultWriteTimeout = 10 * time.Second

// Saver writes a full collection to durable storage.
type Saver interface {
	Save(ctx context.Context, records []HandRecord) error
}

// PersisterConfig bundles the dependencies of a Persister.
type PersisterConfig struct {
	Saver        Saver
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Persister applies the save-after-mutate policy. Snapshots are written by a
// single background worker in the order they were scheduled; snapshots that
// pile up while a write is in progress collapse into the newest one.
type Persister struct {
	saver        Saver
	writeTimeout time.Duration
	logger       *zap.Logger

	mu         sync.Mutex
	pending    []HandRecord
	hasPending bool
	scheduled  uint64
	written    uint64
	progress   chan struct{}
	closed     bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// NewPersister starts the background writer.
func NewPersister(cfg PersisterConfig) (*Persister, error) {
	if cfg.Saver == nil {
		return nil, newServiceError(opPersisterNew, reasonMissingSaver, errMissingSaver)
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	persister := &Persister{
		saver:        cfg.Saver,
		writeTimeout: writeTimeout,
		logger:       logger,
		progress:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go persister.run()
	return persister, nil
}

// Schedule hands a snapshot to the writer and returns immediately.
func (p *Persister) Schedule(records []HandRecord) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("save scheduled after persister closed", zap.Int("records", len(records)))
		return
	}
	p.pending = records
	p.hasPending = true
	p.scheduled++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every snapshot scheduled before the call has been written.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.scheduled
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.written >= target {
			p.mu.Unlock()
			return nil
		}
		progress := p.progress
		p.mu.Unlock()

		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes any pending snapshot and stops the worker.
func (p *Persister) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.stopped
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	<-p.stopped
	return nil
}

func (p *Persister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *Persister) drain() {
	for {
		p.mu.Lock()
		if !p.hasPending {
			p.mu.Unlock()
			return
		}
		snapshot := p.pending
		sequence := p.scheduled
		p.pending = nil
		p.hasPending = false
		p.mu.Unlock()

		p.write(snapshot)

		p.mu.Lock()
		p.written = sequence
		close(p.progress)
		p.progress = make(chan struct{})
		p.mu.Unlock()
	}
}

func (p *Persister) write(snapshot []HandRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.saver.Save(ctx, snapshot); err != nil {
		fields := []zap.Field{
			zap.String("operation", opSave),
			zap.Int("records", len(snapshot)),
			zap.Error(err),
		}
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			fields = append(fields, zap.String("code", serviceErr.Code()))
		}
		p.logger.Warn("hand collection save failed", fields...)
		return
	}
	p.logger.Debug("hand collection saved", zap.Int("records", len(snapshot)))
}
