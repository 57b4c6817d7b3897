package hands

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/handlog/internal/kvstore"
	"go.uber.org/zap"
)

// SlotStore is the durable key-value slot holding the serialized collection.
type SlotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// StoreConfig bundles the dependencies of a Store.
type StoreConfig struct {
	Slots  SlotStore
	Key    string
	Logger *zap.Logger
}

// Store loads and saves the whole hand collection as one JSON blob.
type Store struct {
	slots  SlotStore
	key    string
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Slots == nil {
		return nil, newServiceError(opStoreNew, reasonMissingStore, errMissingSlotStore)
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, newServiceError(opStoreNew, reasonMissingKey, errEmptyStorageKey)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{slots: cfg.Slots, key: key, logger: logger}, nil
}

// Load returns the persisted collection. A missing slot, a read failure or an
// undecodable blob all yield an empty collection.
func (s *Store) Load(ctx context.Context) []HandRecord {
	raw, err := s.slots.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrSlotNotFound) {
		return []HandRecord{}
	}
	if err != nil {
		s.logger.Warn("hand collection read failed",
			zap.String("operation", opLoad),
			zap.String("reason", reasonReadFailed),
			zap.String("key", s.key),
			zap.Error(err))
		return []HandRecord{}
	}
	if strings.TrimSpace(raw) == "" {
		return []HandRecord{}
	}

	var records []HandRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("hand collection decode failed",
			zap.String("operation", opLoad),
			zap.String("reason", reasonDecodeFailed),
			zap.String("key", s.key),
			zap.Error(err))
		return []HandRecord{}
	}
	if records == nil {
		return []HandRecord{}
	}
	return records
}

// Save serializes the full collection and replaces the stored blob.
func (s *Store) Save(ctx context.Context, records []HandRecord) error {
	if records == nil {
		records = []HandRecord{}
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return newServiceError(opSave, reasonEncodeFailed, err)
	}
	if err := s.slots.Set(ctx, s.key, string(encoded)); err != nil {
		return newServiceError(opSave, reasonWriteFailed, err)
	}
	return nil
}
