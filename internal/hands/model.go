package hands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "Jan 2"
	timeLayout = "03:04 PM"
)

var (
	// ErrInvalidHandID indicates that a hand identifier is not a positive integer.
	ErrInvalidHandID = errors.New("hands: invalid hand id")
	// ErrEmptyHandText indicates that the hand text is blank after trimming.
	ErrEmptyHandText = errors.New("hands: hand text is empty")
	// ErrHandNotFound indicates that no record carries the requested identifier.
	ErrHandNotFound = errors.New("hands: hand not found")
	// ErrStaleAnalysis indicates that the hand text changed after the analysis was requested.
	ErrStaleAnalysis = errors.New("hands: analysis no longer matches hand text")
)

// HandID identifies a hand for its whole lifetime.
type HandID int64

// NewHandID validates raw input and returns a HandID.
func NewHandID(rawInput string) (HandID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidHandID)
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHandID, trimmed)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHandID, value)
	}
	return HandID(value), nil
}

// Int64 exposes the raw identifier value.
func (id HandID) Int64() int64 {
	return int64(id)
}

func (id HandID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// HandRecord is the persisted unit: hand text, last-saved stamp and cached analysis.
type HandRecord struct {
	ID       HandID  `json:"id"`
	Text     string  `json:"text"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	Analysis *string `json:"analysis,omitempty"`
}

// HasAnalysis reports whether a cached analysis is attached.
func (record HandRecord) HasAnalysis() bool {
	return record.Analysis != nil
}

// AnalysisText returns the cached analysis or an empty string.
func (record HandRecord) AnalysisText() string {
	if record.Analysis == nil {
		return ""
	}
	return *record.Analysis
}

func (record HandRecord) clone() HandRecord {
	copied := record
	if record.Analysis != nil {
		analysis := *record.Analysis
		copied.Analysis = &analysis
	}
	return copied
}

func normalizeText(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", ErrEmptyHandText
	}
	return trimmed, nil
}

func stamp(now time.Time, location *time.Location) (string, string) {
	if location != nil {
		now = now.In(location)
	}
	return now.Format(dateLayout), now.Format(timeLayout)
}

func cloneRecords(records []HandRecord) []HandRecord {
	copies := make([]HandRecord, len(records))
	for index, record := range records {
		copies[index] = record.clone()
	}
	return copies
}
