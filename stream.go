package ice

import "sync"

// Stream is a named collection of components sharing one check list,
// RFC 8445 Section 3's media stream ("IceMediaStream" in the ICE-PAC
// pseudocode).
type Stream struct {
	Name string

	mu             sync.RWMutex
	components     map[int]*Component
	checkList      *CheckList
	remoteUfrag    string
	remotePassword string
	validPairs     []*CandidatePair
	// pendingPreDiscovered holds pairs created by incoming checks that
	// arrived before connectivity establishment started, RFC 8445
	// Section 7.3.1.3.
	pendingPreDiscovered []*CandidatePair
}

// NewStream returns a stream with an empty check list.
func NewStream(name string) *Stream {
	return &Stream{
		Name:       name,
		components: make(map[int]*Component),
		checkList:  NewCheckList(),
	}
}

// AddComponent registers a component under this stream.
func (s *Stream) AddComponent(c *Component) {
	s.mu.Lock()
	s.components[c.ID] = c
	s.mu.Unlock()
}

// Component returns the component with the given id.
func (s *Stream) Component(id int) (*Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[id]
	return c, ok
}

// Components returns a snapshot of all components, ordered by id.
func (s *Stream) Components() []*Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	return out
}

// CheckList returns the stream's check list.
func (s *Stream) CheckList() *CheckList { return s.checkList }

// SetRemoteCredentials records the remote ufrag/password used for
// USERNAME/MESSAGE-INTEGRITY on checks targeting this stream.
func (s *Stream) SetRemoteCredentials(ufrag, password string) {
	s.mu.Lock()
	s.remoteUfrag = ufrag
	s.remotePassword = password
	s.mu.Unlock()
}

// RemoteCredentials returns the remote ufrag/password.
func (s *Stream) RemoteCredentials() (ufrag, password string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteUfrag, s.remotePassword
}

// AddValidPair adds p to the stream's valid list, idempotent if p is
// already present.
func (s *Stream) AddValidPair(p *CandidatePair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.validPairs {
		if v.ID == p.ID {
			return
		}
	}
	s.validPairs = append(s.validPairs, p)
}

// ValidPairs returns a snapshot of the stream's valid pair list.
func (s *Stream) ValidPairs() []*CandidatePair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*CandidatePair, len(s.validPairs))
	copy(out, s.validPairs)
	return out
}

// ValidFoundations returns the set of foundations covered by the
// stream's valid list, used for cross-stream unfreeze per RFC 8445
// Section 7.2.5.3.3.
func (s *Stream) ValidFoundations() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.validPairs))
	for _, p := range s.validPairs {
		out[p.Foundation] = true
	}
	return out
}

// CoversAllComponents reports whether every component has at least one
// valid pair.
func (s *Stream) CoversAllComponents() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	covered := make(map[int]bool)
	for _, p := range s.validPairs {
		covered[p.ComponentID] = true
	}
	for id := range s.components {
		if !covered[id] {
			return false
		}
	}
	return len(s.components) > 0
}

// AllComponentsNominated reports whether every component has a nominated
// valid pair, the gate for a check list reaching Completed per RFC 8445
// Section 7.1.3.2.3.
func (s *Stream) AllComponentsNominated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nominated := make(map[int]bool)
	for _, p := range s.validPairs {
		if p.Nominated {
			nominated[p.ComponentID] = true
		}
	}
	for id := range s.components {
		if !nominated[id] {
			return false
		}
	}
	return len(s.components) > 0
}

// EnqueuePreDiscovered buffers a pair discovered from an incoming check
// that arrived before connectivity establishment started.
func (s *Stream) EnqueuePreDiscovered(p *CandidatePair) {
	s.mu.Lock()
	s.pendingPreDiscovered = append(s.pendingPreDiscovered, p)
	s.mu.Unlock()
}

// DrainPreDiscovered returns and clears the buffered pre-discovered
// pairs, called once connectivity establishment starts so they can be
// fed into the triggered-check queues.
func (s *Stream) DrainPreDiscovered() []*CandidatePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingPreDiscovered
	s.pendingPreDiscovered = nil
	return out
}
