package telemetry

import "sync"

// State is the single slot holding the most recent completed detection. One
// mutex guards the whole (seq, x, y) group so readers never see a partial
// update.
type State struct {
	mu      sync.Mutex
	result  Result
	present bool
	updates uint64
}

// Store replaces the current result.
func (s *State) Store(r Result) {
	s.mu.Lock()
	s.result = r
	s.present = true
	s.updates++
	s.mu.Unlock()
}

// Load returns the current result; ok is false until the first Store.
func (s *State) Load() (r Result, ok bool) {
	s.mu.Lock()
	r, ok = s.result, s.present
	s.mu.Unlock()
	return r, ok
}

// Updates returns how many results have been stored.
func (s *State) Updates() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}
