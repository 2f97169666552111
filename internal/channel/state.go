package channel

import (
	"sync"
	"time"
)

// State is the shared connection state of one channel.
// Connected writes carry the time they were observed and stale ones are
// ignored; identity writes always win.
type State struct {
	mu         sync.Mutex
	connected  bool
	observedAt time.Time
	identity   *Identity
}

// SetConnected applies v observed at at. It reports whether the flag flipped.
// A write older than the last applied one is discarded.
func (s *State) SetConnected(v bool, at time.Time) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.Before(s.observedAt) {
		return false
	}
	s.observedAt = at
	if s.connected == v {
		return false
	}
	s.connected = v
	return true
}

// SetIdentity replaces the identity wholesale.
func (s *State) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

// Connected returns the current flag.
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Snapshot copies the state into a Status.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Connected: s.connected, ObservedAt: s.observedAt}
	if s.identity != nil {
		id := *s.identity
		st.Identity = &id
	}
	return st
}
