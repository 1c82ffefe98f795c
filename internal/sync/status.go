package sync

import "sync"

// State is the process-wide aggregate sync state shown to the host shell.
type State string

const (
	StateSynced  State = "synced"
	StatePending State = "pending"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateOffline State = "offline"
)

// Status is an observable state cell. It is injected rather than global so
// tests can instantiate isolated instances. Transitions are driven only by
// connectivity events and pass completion, never set directly by the UI.
type Status struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewStatus creates a Status starting in the synced state.
func NewStatus() *Status {
	return &Status{
		state: StateSynced,
		subs:  make(map[int]func(State)),
	}
}

// Get returns the current state.
func (s *Status) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a state-change callback and returns an unsubscribe
// function. Callbacks run synchronously; subscribers must not block.
func (s *Status) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// set applies a new state and notifies subscribers on change.
func (s *Status) set(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	var fns []func(State)
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
