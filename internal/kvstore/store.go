package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	columnSlotKey   = "slot_key"
	columnSlotValue = "slot_value"
	columnUpdatedAt = "updated_at_s"
	querySlotKey    = columnSlotKey + " = ?"
	maxKeyLength    = 190
)

var (
	// ErrSlotNotFound indicates that no value has been written under the key yet.
	ErrSlotNotFound = errors.New("kvstore: slot not found")
	// ErrInvalidKey indicates that a slot key is empty or exceeds storage bounds.
	ErrInvalidKey = errors.New("kvstore: invalid slot key")

	errMissingDatabase = errors.New("database handle is required")
)

// Slot is a single durable key-value entry.
type Slot struct {
	Key              string `gorm:"column:slot_key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:slot_value;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Slot) TableName() string {
	return "kv_slots"
}

// StoreConfig bundles the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store reads and writes whole values under string keys.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Get returns the value stored under key or ErrSlotNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	var slot Slot
	err = s.db.WithContext(ctx).Where(querySlotKey, normalized).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrSlotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kvstore: read %s: %w", normalized, err)
	}
	return slot.Value, nil
}

// Set replaces whatever is stored under key with value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	normalized, err := normalizeKey(key)
	if err != nil {
		return err
	}

	slot := Slot{
		Key:              normalized,
		Value:            value,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnSlotKey}},
		DoUpdates: clause.AssignmentColumns([]string{columnSlotValue, columnUpdatedAt}),
	}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("kvstore: write %s: %w", normalized, err)
	}

	s.logger.Debug("slot written", zap.String("key", normalized), zap.Int("bytes", len(value)))
	return nil
}

func normalizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(trimmed) > maxKeyLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	return trimmed, nil
}
