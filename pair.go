package ice

import (
	"sync"
	"time"
)

// PairState is the state of a candidate pair, RFC 8445 Section 6.1.2.6.
type PairState byte

// Candidate pair states. The zero value is Frozen, matching RFC 8445
// Section 6.1.2.6's initial state for every formed pair.
const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

var pairStateToStr = map[PairState]string{
	PairFrozen:     "frozen",
	PairWaiting:    "waiting",
	PairInProgress: "in-progress",
	PairSucceeded:  "succeeded",
	PairFailed:     "failed",
}

func (s PairState) String() string {
	if v, ok := pairStateToStr[s]; ok {
		return v
	}
	return "unknown"
}

// PairPriority computes the RFC 8445 Section 6.1.2.3 pair priority,
// where g is the controlling-side candidate priority and d is the
// controlled-side candidate priority.
//
//	priority = 2^32*MIN(G,D) + 2*MAX(G,D) + (G>D?1:0)
func PairPriority(g, d uint32) uint64 {
	gg, dd := uint64(g), uint64(d)
	min, max := gg, dd
	if dd < gg {
		min, max = dd, gg
	}
	v := (uint64(1)<<32)*min + 2*max
	if gg > dd {
		v++
	}
	return v
}

// CandidatePair is a (local, remote) candidate pair and its connectivity
// check state, RFC 8445 Section 6.1.2.
type CandidatePair struct {
	mu sync.Mutex

	ID     ID
	Local  ID // LocalCandidate.ID
	Remote ID // RemoteCandidate.ID

	StreamID    string
	ComponentID int

	// Foundation is the concatenation of the local and remote
	// candidates' foundations, set once at pair creation time.
	Foundation string

	state    PairState
	priority uint64

	Nominated           bool
	Valid               bool
	UseCandidateSent    bool
	UseCandidateReceived bool

	txID [12]byte
	hasTx bool

	consentFreshness time.Time
	hasConsent       bool
}

// NewCandidatePair returns a pair in the initial Frozen state.
func NewCandidatePair(streamID string, componentID int, local, remote ID, foundation string) *CandidatePair {
	return &CandidatePair{
		ID:          newCandidateID(),
		StreamID:    streamID,
		ComponentID: componentID,
		Local:       local,
		Remote:      remote,
		Foundation:  foundation,
		state:       PairFrozen,
	}
}

// State returns the pair's current state.
func (p *CandidatePair) State() PairState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState atomically transitions the pair's state. Only PairInProgress
// carries a transaction id; setting any other state clears it.
func (p *CandidatePair) SetState(s PairState) {
	p.mu.Lock()
	p.state = s
	if s != PairInProgress {
		p.hasTx = false
	}
	p.mu.Unlock()
}

// Priority returns the pair's priority as last computed by ComputePriority.
func (p *CandidatePair) Priority() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priority
}

// SetPriority sets the pair's priority, recomputed whenever the agent's
// controlling role changes.
func (p *CandidatePair) SetPriority(v uint64) {
	p.mu.Lock()
	p.priority = v
	p.mu.Unlock()
}

// SetTransaction records the in-flight STUN transaction id for this pair.
func (p *CandidatePair) SetTransaction(id [12]byte) {
	p.mu.Lock()
	p.txID = id
	p.hasTx = true
	p.mu.Unlock()
}

// Transaction returns the in-flight transaction id, if any.
func (p *CandidatePair) Transaction() ([12]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txID, p.hasTx
}

// ClearTransaction drops the in-flight transaction id without changing
// state, used when a triggered check cancels an IN_PROGRESS check.
func (p *CandidatePair) ClearTransaction() {
	p.mu.Lock()
	p.hasTx = false
	p.mu.Unlock()
}

// RefreshConsent records a successful consent-freshness check.
func (p *CandidatePair) RefreshConsent(at time.Time) {
	p.mu.Lock()
	p.consentFreshness = at
	p.hasConsent = true
	p.mu.Unlock()
}

// ConsentFreshness returns the last consent timestamp and whether one has
// ever been recorded.
func (p *CandidatePair) ConsentFreshness() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consentFreshness, p.hasConsent
}

// Pairs is a priority-ordered (descending) slice of candidate pairs.
type Pairs []*CandidatePair

func (p Pairs) Len() int      { return len(p) }
func (p Pairs) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p Pairs) Less(i, j int) bool {
	return p[i].Priority() > p[j].Priority()
}
