package ice

import "sync"

// Component is an ICE component within a media stream, identified by an
// integer id (1 = RTP, 2 = RTCP by convention), RFC 8445 Section 3.
type Component struct {
	ID       int
	StreamID string

	mu       sync.RWMutex
	local    map[ID]*LocalCandidate
	remote   map[ID]*RemoteCandidate
	defLocal ID
	selected ID
	hasSel   bool
	keepAlive map[ID]struct{}
}

// NewComponent returns an empty component with the given id.
func NewComponent(streamID string, id int) *Component {
	return &Component{
		ID:        id,
		StreamID:  streamID,
		local:     make(map[ID]*LocalCandidate),
		remote:    make(map[ID]*RemoteCandidate),
		keepAlive: make(map[ID]struct{}),
	}
}

// AddLocal registers a local candidate, recomputing the default
// candidate (highest DefaultPreference) if necessary.
func (c *Component) AddLocal(lc *LocalCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[lc.ID] = lc
	c.recomputeDefaultLocked()
}

func (c *Component) recomputeDefaultLocked() {
	var (
		best     ID
		bestPref = -1
		found    bool
	)
	for id, lc := range c.local {
		isV4 := lc.Addr.IP.To4() != nil
		pref := DefaultPreference(lc.Type, isV4)
		if pref > bestPref {
			bestPref = pref
			best = id
			found = true
		}
	}
	if found {
		c.defLocal = best
	}
}

// AddRemote registers a remote candidate.
func (c *Component) AddRemote(rc *RemoteCandidate) {
	c.mu.Lock()
	c.remote[rc.ID] = rc
	c.mu.Unlock()
}

// LocalByID returns the local candidate with the given id.
func (c *Component) LocalByID(id ID) (*LocalCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lc, ok := c.local[id]
	return lc, ok
}

// RemoteByID returns the remote candidate with the given id.
func (c *Component) RemoteByID(id ID) (*RemoteCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.remote[id]
	return rc, ok
}

// LocalCandidates returns a snapshot of all local candidates.
func (c *Component) LocalCandidates() []*LocalCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*LocalCandidate, 0, len(c.local))
	for _, lc := range c.local {
		out = append(out, lc)
	}
	return out
}

// RemoteCandidates returns a snapshot of all remote candidates.
func (c *Component) RemoteCandidates() []*RemoteCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RemoteCandidate, 0, len(c.remote))
	for _, rc := range c.remote {
		out = append(out, rc)
	}
	return out
}

// FindLocalByAddr returns the local candidate whose address equals addr.
func (c *Component) FindLocalByAddr(addr Addr) (*LocalCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, lc := range c.local {
		if lc.Addr.Equal(addr) {
			return lc, true
		}
	}
	return nil, false
}

// FindRemoteByAddr returns the remote candidate whose address equals addr.
func (c *Component) FindRemoteByAddr(addr Addr) (*RemoteCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rc := range c.remote {
		if rc.Addr.Equal(addr) {
			return rc, true
		}
	}
	return nil, false
}

// DefaultLocal returns the component's default local candidate id.
func (c *Component) DefaultLocal() (ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defLocal, c.defLocal != 0
}

// SetSelected marks pairID as the component's selected pair.
func (c *Component) SetSelected(pairID ID) {
	c.mu.Lock()
	c.selected = pairID
	c.hasSel = true
	c.mu.Unlock()
}

// Selected returns the component's selected pair id, if any.
func (c *Component) Selected() (ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected, c.hasSel
}

// AddKeepAlive adds pairID to the keep-alive set.
func (c *Component) AddKeepAlive(pairID ID) {
	c.mu.Lock()
	c.keepAlive[pairID] = struct{}{}
	c.mu.Unlock()
}

// RemoveKeepAlive removes pairID from the keep-alive set.
func (c *Component) RemoveKeepAlive(pairID ID) {
	c.mu.Lock()
	delete(c.keepAlive, pairID)
	c.mu.Unlock()
}

// KeepAliveSet returns a snapshot of the pair ids in the keep-alive set.
func (c *Component) KeepAliveSet() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ID, 0, len(c.keepAlive))
	for id := range c.keepAlive {
		out = append(out, id)
	}
	return out
}
