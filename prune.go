package ice

import (
	"sort"

	"github.com/gortc/iceagent/candidate"
)

// Role represents the ICE agent's role in a connectivity check, RFC 8445
// Section 4.
type Role byte

// Possible agent roles.
const (
	Controlling Role = iota
	Controlled
)

func (r Role) String() string {
	if r == Controlling {
		return "controlling"
	}
	return "controlled"
}

// candidateLookup resolves candidate ids to their data, used by the
// pruner and priority calculator so they never hold direct pointers into
// a Component's maps.
type candidateLookup interface {
	LocalByID(ID) (*LocalCandidate, bool)
	RemoteByID(ID) (*RemoteCandidate, bool)
}

// BuildPairs pairs every local candidate with every remote candidate of
// the same component where local.CanReach(remote) and remote.Port != 0,
// RFC 8445 Section 6.1.2.2.
func BuildPairs(streamID string, comp *Component, allowLinkToGlobal bool) Pairs {
	var pairs Pairs
	for _, l := range comp.LocalCandidates() {
		for _, r := range comp.RemoteCandidates() {
			if l.ComponentID != r.ComponentID {
				continue
			}
			if r.Addr.Port == 0 {
				continue
			}
			if !l.Addr.CanReach(r.Addr, allowLinkToGlobal) {
				continue
			}
			pairs = append(pairs, NewCandidatePair(
				streamID, l.ComponentID, l.ID, r.ID,
				l.Foundation+r.Foundation,
			))
		}
	}
	return pairs
}

// ComputePriorities computes the RFC 8445 Section 6.1.2.3 priority for
// every pair given the agent's current role.
func ComputePriorities(pairs Pairs, comp candidateLookup, role Role) {
	for _, p := range pairs {
		lc, _ := comp.LocalByID(p.Local)
		rc, _ := comp.RemoteByID(p.Remote)
		if lc == nil || rc == nil {
			continue
		}
		g, d := lc.Priority, rc.Priority
		if role == Controlled {
			g, d = d, g
		}
		p.SetPriority(PairPriority(g, d))
	}
}

// Order sorts pairs by priority, descending.
func Order(pairs Pairs) { sort.Sort(pairs) }

// Prune walks the sorted pair sequence, replacing server/peer-reflexive
// local candidates with their base, dropping pairs whose (local.base,
// remote) duplicates one already kept, and dropping pairs where local
// and remote transport differ, RFC 8445 Section 6.1.2.4.
//
// Grounded on vendor/github.com/gortc/ice/checklist.go's Prune, extended
// with the transport-mismatch rule that implementation does not apply.
func Prune(pairs Pairs, comp candidateLookup) Pairs {
	type kept struct {
		base   ID
		remote ID
	}
	seen := make(map[kept]bool)
	result := make(Pairs, 0, len(pairs))
	for _, p := range pairs {
		lc, ok := comp.LocalByID(p.Local)
		if !ok {
			continue
		}
		rc, ok := comp.RemoteByID(p.Remote)
		if !ok {
			continue
		}
		if lc.Addr.Proto != rc.Addr.Proto {
			continue
		}
		base := lc.Base
		if base == 0 {
			base = lc.ID
		}
		key := kept{base: base, remote: p.Remote}
		if seen[key] {
			continue
		}
		seen[key] = true
		p.Local = base
		result = append(result, p)
	}
	return result
}

// AssignTCPType sets the TCP role of local candidates that have none yet:
// active if the remote is passive, passive otherwise, per RFC 6544
// Section 5.2. Local candidates are owned by the caller's Component, so
// this mutates them in place.
func AssignTCPType(pairs Pairs, comp candidateLookup) {
	for _, p := range pairs {
		lc, ok := comp.LocalByID(p.Local)
		if !ok || lc.Addr.Proto != candidate.TCP {
			continue
		}
		if lc.TCPType != candidate.TCPNone {
			continue
		}
		rc, ok := comp.RemoteByID(p.Remote)
		if !ok {
			continue
		}
		if rc.TCPType == candidate.TCPPassive {
			lc.TCPType = candidate.TCPActive
		} else {
			lc.TCPType = candidate.TCPPassive
		}
	}
}

// Limit truncates pairs to max entries, dropping the lowest-priority
// ones. pairs must already be ordered by priority descending.
func Limit(pairs Pairs, max int) Pairs {
	if len(pairs) <= max {
		return pairs
	}
	return pairs[:max]
}

// InitialStates sets a check list's initial pair states per RFC 8445
// Section 6.1.2.6: for each foundation group, the pair with the lowest
// component id (ties broken by highest priority) becomes Waiting; every
// other pair in every group becomes (or remains) Frozen.
func InitialStates(pairs Pairs) {
	groups := make(map[string]Pairs)
	for _, p := range pairs {
		groups[p.Foundation] = append(groups[p.Foundation], p)
	}
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if group[i].ComponentID != group[j].ComponentID {
				return group[i].ComponentID < group[j].ComponentID
			}
			return group[i].Priority() > group[j].Priority()
		})
		for i, p := range group {
			if i == 0 {
				p.SetState(PairWaiting)
			} else {
				p.SetState(PairFrozen)
			}
		}
	}
}
