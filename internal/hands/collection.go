package hands

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeCreated          ChangeKind = "created"
	ChangeUpdated          ChangeKind = "updated"
	ChangeDeleted          ChangeKind = "deleted"
	ChangeAnalysisAttached ChangeKind = "analysis-attached"
)

// Change describes one applied mutation.
type Change struct {
	Kind   ChangeKind
	HandID HandID
	At     time.Time
}

// SaveScheduler accepts full-collection snapshots for persistence.
type SaveScheduler interface {
	Schedule(records []HandRecord)
}

// CollectionConfig bundles the dependencies of a Collection.
type CollectionConfig struct {
	Records    []HandRecord
	Scheduler  SaveScheduler
	IDProvider IDProvider
	Clock      func() time.Time
	Location   *time.Location
	Logger     *zap.Logger
	OnChange   func(Change)
}

// Collection owns the in-memory hand list and is its only writer. Every
// successful mutation schedules a full-collection save.
type Collection struct {
	mu         sync.RWMutex
	records    []HandRecord
	scheduler  SaveScheduler
	idProvider IDProvider
	clock      func() time.Time
	location   *time.Location
	logger     *zap.Logger
	onChange   func(Change)
}

// NewCollection seeds a Collection with previously loaded records.
func NewCollection(cfg CollectionConfig) (*Collection, error) {
	if cfg.Scheduler == nil {
		return nil, newServiceError(opCollectionNew, reasonMissingPersist, errMissingScheduler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewCreationTimeProvider(clock)
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Collection{
		records:    cloneRecords(cfg.Records),
		scheduler:  cfg.Scheduler,
		idProvider: idProvider,
		clock:      clock,
		location:   location,
		logger:     logger,
		onChange:   cfg.OnChange,
	}, nil
}

// List returns the collection, newest creation first.
func (c *Collection) List() []HandRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneRecords(c.records)
}

// Len reports the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get returns the record with the given identifier.
func (c *Collection) Get(id HandID) (HandRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index := c.indexOf(id)
	if index < 0 {
		return HandRecord{}, false
	}
	return c.records[index].clone(), true
}

// Create stamps a new record and prepends it.
func (c *Collection) Create(text string) (HandRecord, error) {
	normalized, err := normalizeText(text)
	if err != nil {
		return HandRecord{}, newServiceError(opCreate, reasonEmptyText, err)
	}

	c.mu.Lock()
	id, err := c.idProvider.NewID()
	if err != nil {
		c.mu.Unlock()
		c.logError(opCreate, reasonIDGeneration, err)
		return HandRecord{}, newServiceError(opCreate, reasonIDGeneration, err)
	}
	if c.indexOf(id) >= 0 {
		id = c.maxID() + 1
	}

	now := c.clock()
	date, clockTime := stamp(now, c.location)
	record := HandRecord{ID: id, Text: normalized, Date: date, Time: clockTime}

	next := make([]HandRecord, 0, len(c.records)+1)
	next = append(next, record)
	next = append(next, c.records...)
	c.records = next
	c.commitLocked()
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeCreated, HandID: id, At: now})
	return record.clone(), nil
}

// Update replaces the text of a record and refreshes its stamp. The cached
// analysis is cleared only when the text actually changed.
func (c *Collection) Update(id HandID, text string) (HandRecord, error) {
	normalized, err := normalizeText(text)
	if err != nil {
		return HandRecord{}, newServiceError(opUpdate, reasonEmptyText, err)
	}

	c.mu.Lock()
	index := c.indexOf(id)
	if index < 0 {
		c.mu.Unlock()
		return HandRecord{}, newServiceError(opUpdate, reasonNotFound, ErrHandNotFound)
	}

	now := c.clock()
	record := c.records[index]
	if record.Text != normalized {
		record.Analysis = nil
	}
	record.Text = normalized
	record.Date, record.Time = stamp(now, c.location)
	c.records[index] = record
	c.commitLocked()
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeUpdated, HandID: id, At: now})
	return record.clone(), nil
}

// Delete removes the record with the given identifier. Deleting an unknown
// identifier is a no-op and reports false.
func (c *Collection) Delete(id HandID) bool {
	c.mu.Lock()
	index := c.indexOf(id)
	if index < 0 {
		c.mu.Unlock()
		return false
	}

	next := make([]HandRecord, 0, len(c.records)-1)
	next = append(next, c.records[:index]...)
	next = append(next, c.records[index+1:]...)
	c.records = next
	c.commitLocked()
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeDeleted, HandID: id, At: c.clock()})
	return true
}

// AttachAnalysis caches an analysis on the record without validating it.
func (c *Collection) AttachAnalysis(id HandID, analysis string) (HandRecord, error) {
	return c.attach(id, nil, analysis)
}

// AttachAnalysisFor caches an analysis produced for requestedText. It fails
// with ErrStaleAnalysis when the record has been edited since.
func (c *Collection) AttachAnalysisFor(id HandID, requestedText, analysis string) (HandRecord, error) {
	return c.attach(id, &requestedText, analysis)
}

func (c *Collection) attach(id HandID, requestedText *string, analysis string) (HandRecord, error) {
	c.mu.Lock()
	index := c.indexOf(id)
	if index < 0 {
		c.mu.Unlock()
		return HandRecord{}, newServiceError(opAttachAnalysis, reasonNotFound, ErrHandNotFound)
	}
	record := c.records[index]
	if requestedText != nil && record.Text != *requestedText {
		c.mu.Unlock()
		return HandRecord{}, newServiceError(opAttachAnalysis, reasonStaleAnalysis, ErrStaleAnalysis)
	}

	cached := analysis
	record.Analysis = &cached
	c.records[index] = record
	c.commitLocked()
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeAnalysisAttached, HandID: id, At: c.clock()})
	return record.clone(), nil
}

func (c *Collection) commitLocked() {
	c.scheduler.Schedule(cloneRecords(c.records))
}

func (c *Collection) notify(change Change) {
	if c.onChange != nil {
		c.onChange(change)
	}
}

func (c *Collection) indexOf(id HandID) int {
	for index := range c.records {
		if c.records[index].ID == id {
			return index
		}
	}
	return -1
}

func (c *Collection) maxID() HandID {
	var highest HandID
	for _, record := range c.records {
		if record.ID > highest {
			highest = record.ID
		}
	}
	return highest
}

func (c *Collection) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("hand collection error", attrs...)
}
