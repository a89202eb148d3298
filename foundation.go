package ice

import (
	"strconv"
	"sync"

	"github.com/gortc/iceagent/candidate"
)

// foundationKey groups candidates that are likely to share network path
// characteristics: same type, base IP, STUN/TURN server and transport.
type foundationKey struct {
	typ       candidate.Type
	baseIP    string
	serverIP  string
	transport candidate.TransportType
}

// FoundationRegistry assigns stable decimal foundation strings to
// candidates, grounded on internal/allocator.Allocator's
// mutex-guarded find-or-insert idiom (a concurrent map by another name).
type FoundationRegistry struct {
	mu   sync.Mutex
	ids  map[foundationKey]int
	next int

	peerReflexiveMu   sync.Mutex
	nextPeerReflexive int
}

// NewFoundationRegistry returns a registry ready for use.
func NewFoundationRegistry() *FoundationRegistry {
	return &FoundationRegistry{
		ids:               make(map[foundationKey]int),
		next:              1,
		nextPeerReflexive: 10000,
	}
}

// Assign derives a key from (type, base-IP, STUN/TURN-server-IP-or-empty,
// transport), looks up an existing integer or allocates the next one, and
// sets c.Foundation to its decimal string representation.
func (r *FoundationRegistry) Assign(c *Candidate, base Addr, server Addr) {
	key := foundationKey{
		typ:       c.Type,
		baseIP:    base.IP.String(),
		transport: c.Addr.Proto,
	}
	if !server.IsZero() {
		key.serverIP = server.IP.String()
	}
	r.mu.Lock()
	id, ok := r.ids[key]
	if !ok {
		id = r.next
		r.ids[key] = id
		r.next++
	}
	r.mu.Unlock()
	c.Foundation = strconv.Itoa(id)
}

// ObtainPeerReflexiveFoundation returns the next integer from an
// independent counter starting at 10000, used for peer-reflexive
// candidates discovered during connectivity checks.
func (r *FoundationRegistry) ObtainPeerReflexiveFoundation() string {
	r.peerReflexiveMu.Lock()
	id := r.nextPeerReflexive
	r.nextPeerReflexive++
	r.peerReflexiveMu.Unlock()
	return strconv.Itoa(id)
}
