package hands

import (
	"errors"
	"fmt"
)

var (
	errMissingSlotStore = errors.New("slot store is required")
	errMissingSaver     = errors.New("saver is required")
	errMissingScheduler = errors.New("save scheduler is required")
	errEmptyStorageKey  = errors.New("storage key is required")
)

const (
	opStoreNew           = "hands.store.new"
	opPersisterNew       = "hands.persister.new"
	opCollectionNew      = "hands.collection.new"
	opCreate             = "hands.create"
	opUpdate             = "hands.update"
	opAttachAnalysis     = "hands.attach_analysis"
	opSave               = "hands.save"
	opLoad               = "hands.load"
	reasonEmptyText      = "empty_text"
	reasonNotFound       = "not_found"
	reasonIDGeneration   = "id_generation_failed"
	reasonStaleAnalysis  = "stale_analysis"
	reasonEncodeFailed   = "encode_failed"
	reasonWriteFailed    = "write_failed"
	reasonReadFailed     = "read_failed"
	reasonDecodeFailed   = "decode_failed"
	reasonMissingStore   = "missing_slot_store"
	reasonMissingKey     = "missing_storage_key"
	reasonMissingSaver   = "missing_saver"
	reasonMissingPersist = "missing_scheduler"
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
