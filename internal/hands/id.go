package hands

import (
	"sync"
	"time"
)

// IDProvider issues identifiers for newly created hands.
type IDProvider interface {
	NewID() (HandID, error)
}

type creationTimeProvider struct {
	mu    sync.Mutex
	clock func() time.Time
	last  HandID
}

// NewCreationTimeProvider constructs an IDProvider that derives identifiers from
// the creation time in unix milliseconds. Identifiers issued by one provider are
// strictly increasing even when the clock stalls or steps backwards.
func NewCreationTimeProvider(clock func() time.Time) IDProvider {
	if clock == nil {
		clock = time.Now
	}
	return &creationTimeProvider{clock: clock}
}

func (p *creationTimeProvider) NewID() (HandID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidate := HandID(p.clock().UnixMilli())
	if candidate <= p.last {
		candidate = p.last + 1
	}
	p.last = candidate
	return candidate, nil
}
