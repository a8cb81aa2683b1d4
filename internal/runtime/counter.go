package runtime

import (
	"encoding/json"
	"sync"

	"github.com/livetemplate/widgetlab/internal/counter"
)

// CounterState is the live state of a counter widget.
type CounterState struct {
	Count int `json:"count"`

	counter *counter.Counter
	mu      sync.RWMutex
}

// NewCounterState returns a counter at zero.
func NewCounterState() *CounterState {
	return &CounterState{counter: counter.New()}
}

// HandleAction dispatches increment, decrement and reset.
func (s *CounterState) HandleAction(action string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch normalizeAction(action) {
	case "increment", "inc":
		s.counter.Increment()
	case "decrement", "dec":
		s.counter.Decrement()
	case "reset":
		s.counter.Reset()
	default:
		return &ActionError{Widget: "counter", Action: action, Err: ErrUnknownAction}
	}

	s.Count = s.counter.Count()
	return nil
}

// counterJSON has the fields of CounterState without its methods.
type counterJSON CounterState

// MarshalJSON encodes the view fields under the read lock.
func (s *CounterState) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal((*counterJSON)(s))
}

// Snapshot returns the template view of the counter.
func (s *CounterState) Snapshot() (map[string]interface{}, error) {
	return snapshot(s)
}

// Close is a no-op.
func (s *CounterState) Close() error {
	return nil
}
