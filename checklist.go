package ice

import (
	"sort"
	"sync"
)

// ChecklistState is the aggregate state of a stream's check list, RFC
// 8445 Section 6.1.2.1.
type ChecklistState byte

// Possible checklist states. Running is the zero value: checklists start
// running once populated.
const (
	ChecklistRunning ChecklistState = iota
	ChecklistCompleted
	ChecklistFailed
)

var checklistStateToStr = map[ChecklistState]string{
	ChecklistRunning:   "running",
	ChecklistCompleted: "completed",
	ChecklistFailed:    "failed",
}

func (s ChecklistState) String() string { return checklistStateToStr[s] }

// CheckList is a stream's ordered (by pair priority, descending) sequence
// of pairs, plus a FIFO triggered-check sub-queue, RFC 8445 Section 6.1.2.
//
// Grounded on vendor/github.com/gortc/ice/checklist.go's Checklist type,
// extended with the triggered sub-queue RFC 8445 Section 7.3.1.4 requires
// and which that type does not have.
type CheckList struct {
	mu        sync.Mutex
	pairs     Pairs
	triggered []ID // pair ids, FIFO
	state     ChecklistState
}

// NewCheckList returns an empty, Running check list.
func NewCheckList() *CheckList {
	return &CheckList{state: ChecklistRunning}
}

// Pairs returns a snapshot of the check list's pairs in priority order.
func (c *CheckList) Pairs() Pairs {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(Pairs, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// SetPairs replaces the check list's pairs wholesale (used after
// construction/pruning).
func (c *CheckList) SetPairs(p Pairs) {
	c.mu.Lock()
	c.pairs = p
	c.mu.Unlock()
}

// Add inserts a pair, keeping the list ordered by priority descending.
func (c *CheckList) Add(p *CandidatePair) {
	c.mu.Lock()
	c.pairs = append(c.pairs, p)
	sort.Sort(c.pairs)
	c.mu.Unlock()
}

// ByID returns the pair with the given id.
func (c *CheckList) ByID(id ID) (*CandidatePair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Find returns the pair matching (local, remote) candidate ids.
func (c *CheckList) Find(local, remote ID) (*CandidatePair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		if p.Local == local && p.Remote == remote {
			return p, true
		}
	}
	return nil, false
}

// PushTriggered appends a pair id to the triggered-check sub-queue.
func (c *CheckList) PushTriggered(id ID) {
	c.mu.Lock()
	c.triggered = append(c.triggered, id)
	c.mu.Unlock()
}

// PopTriggered removes and returns the oldest triggered pair id, if any.
func (c *CheckList) PopTriggered() (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.triggered) == 0 {
		return 0, false
	}
	id := c.triggered[0]
	c.triggered = c.triggered[1:]
	return id, true
}

// HighestWaiting returns the highest-priority Waiting pair, if any.
func (c *CheckList) HighestWaiting() (*CandidatePair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs { // already priority-ordered
		if p.State() == PairWaiting {
			return p, true
		}
	}
	return nil, false
}

// State returns the check list's aggregate state.
func (c *CheckList) State() ChecklistState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState sets the check list's aggregate state.
func (c *CheckList) SetState(s ChecklistState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// IsFrozen reports whether every pair in the list is Frozen, RFC 8445
// Section 6.1.2.6.
func (c *CheckList) IsFrozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		if p.State() != PairFrozen {
			return false
		}
	}
	return len(c.pairs) > 0
}

// IsActive reports whether the list has at least one Waiting or
// In-Progress pair.
func (c *CheckList) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		switch p.State() {
		case PairWaiting, PairInProgress:
			return true
		}
	}
	return false
}

// AllChecksCompleted reports whether no pair is Waiting, Frozen or
// In-Progress (i.e. every pair has reached a terminal state).
func (c *CheckList) AllChecksCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		switch p.State() {
		case PairWaiting, PairFrozen, PairInProgress:
			return false
		}
	}
	return true
}

// GroupByFoundation groups the list's pairs by their combined foundation.
func (c *CheckList) GroupByFoundation() map[string]Pairs {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Pairs)
	for _, p := range c.pairs {
		out[p.Foundation] = append(out[p.Foundation], p)
	}
	return out
}
