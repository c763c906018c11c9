package voice

import "sync"

// Set caches the voices last enumerated from the synthesis port.
// The platform may publish its voice list late or change it at any
// time, so readers always take a snapshot.
type Set struct {
	mu      sync.RWMutex
	voices  []Candidate
	version uint64
}

// Replace swaps in a new voice list and bumps the version
func (s *Set) Replace(voices []Candidate) {
	cp := make([]Candidate, len(voices))
	copy(cp, voices)

	s.mu.Lock()
	s.voices = cp
	s.version++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current voices
func (s *Set) Snapshot() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, len(s.voices))
	copy(out, s.voices)
	return out
}

// Len returns the number of cached voices
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voices)
}

// Version increases with every Replace; zero means never loaded
func (s *Set) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
