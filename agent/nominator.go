package agent

import (
	"sync"
	"time"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

// nominator implements the controlling-side nomination strategy chosen
// by ice.Config.NominationStrategy (RFC 8445 Section 8.1.1 leaves the
// strategy to the implementation). Grounded on internal/filter.Rule: a
// small interface selected by configuration key rather than a large
// switch threaded through the Pace Maker.
type nominator interface {
	// onValidated is called every time a pair becomes valid.
	onValidated(a *Agent, stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair)
	// onChecksCompleted is called once a component's check list has no
	// pairs left to check, whether the last one to reach a terminal
	// state succeeded or failed. Strategies that already nominate as
	// soon as a pair validates have nothing left to do here; only
	// NominateHighestPriority, which defers nomination until every check
	// is done, needs this second trigger.
	onChecksCompleted(a *Agent, stream *ice.Stream, comp *ice.Component)
}

func newNominator(s ice.NominationStrategy) nominator {
	switch s {
	case ice.NominateHighestPriority:
		return &highestPriorityNominator{}
	case ice.NominateFirstHostOrReflexiveValid:
		return &firstHostOrReflexiveNominator{armed: make(map[int]*time.Timer)}
	default:
		return &firstValidNominator{}
	}
}

// notifyNominator runs the controlling-side strategy after a pair
// becomes valid. Controlled agents never nominate; they only confirm,
// so this is a no-op unless the agent is currently controlling.
func (a *Agent) notifyNominator(stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair) {
	if !a.IsControlling() {
		return
	}
	a.nominator.onValidated(a, stream, comp, pair)
}

// notifyChecksCompleted runs the controlling-side strategy's second
// hook once a component's check list has nothing left to check. A
// strategy like NominateHighestPriority only picks its winner here: if
// the last pair to reach a terminal state failed rather than
// succeeded, onValidated is never called again, so without this hook
// the stream would have valid pairs from earlier successes but never
// nominate one.
func (a *Agent) notifyChecksCompleted(stream *ice.Stream, comp *ice.Component) {
	if !a.IsControlling() {
		return
	}
	a.nominator.onChecksCompleted(a, stream, comp)
}

// nominate sets pair's nominated flag and queues a triggered check
// carrying USE-CANDIDATE. A no-op if the pair is already nominated.
func (a *Agent) nominate(stream *ice.Stream, pair *ice.CandidatePair) {
	if pair.Nominated {
		return
	}
	pair.Nominated = true
	a.events.Publish(ice.Event{
		Kind: ice.EventPairNominated,
		Payload: ice.PairNominated{
			StreamID:    stream.Name,
			ComponentID: pair.ComponentID,
			Pair:        pair.ID,
		},
	})
	stream.CheckList().PushTriggered(pair.ID)
	a.startPacer(stream)
}

// confirmNomination marks a pair nominated on the receiving side
// (either because this agent observed its own USE-CANDIDATE being
// echoed back, or because it is controlled and received one) and
// advances the stream toward COMPLETED if every component is now
// covered.
func (a *Agent) confirmNomination(stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair) {
	if !pair.Nominated {
		pair.Nominated = true
		a.events.Publish(ice.Event{
			Kind: ice.EventPairNominated,
			Payload: ice.PairNominated{
				StreamID:    stream.Name,
				ComponentID: pair.ComponentID,
				Pair:        pair.ID,
			},
		})
	}
	comp.SetSelected(pair.ID)
	comp.AddKeepAlive(pair.ID)
}

// firstValidNominator implements NominateFirstValid: nominate the first
// pair that validates for each component.
type firstValidNominator struct {
	mu        sync.Mutex
	nominated map[int]bool
}

func (n *firstValidNominator) onValidated(a *Agent, stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair) {
	n.mu.Lock()
	if n.nominated == nil {
		n.nominated = make(map[int]bool)
	}
	if n.nominated[comp.ID] {
		n.mu.Unlock()
		return
	}
	n.nominated[comp.ID] = true
	n.mu.Unlock()
	a.nominate(stream, pair)
}

func (n *firstValidNominator) onChecksCompleted(a *Agent, stream *ice.Stream, comp *ice.Component) {}

// highestPriorityNominator implements NominateHighestPriority: wait
// until every pair on the component's check list has reached a terminal
// state, then nominate the highest-priority valid pair.
type highestPriorityNominator struct{}

func (n *highestPriorityNominator) onValidated(a *Agent, stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair) {
	n.nominateBest(a, stream, comp)
}

func (n *highestPriorityNominator) onChecksCompleted(a *Agent, stream *ice.Stream, comp *ice.Component) {
	n.nominateBest(a, stream, comp)
}

func (n *highestPriorityNominator) nominateBest(a *Agent, stream *ice.Stream, comp *ice.Component) {
	if !stream.CheckList().AllChecksCompleted() {
		return
	}
	var best *ice.CandidatePair
	for _, p := range stream.ValidPairs() {
		if p.ComponentID != comp.ID {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	if best != nil {
		a.nominate(stream, best)
	}
}

// firstHostOrReflexiveNominator implements
// NominateFirstHostOrReflexiveValid: nominate the first non-relay valid
// pair immediately; if a relay pair validates first, arm an 800ms timer
// that nominates the relay pair unless a better one validates first.
type firstHostOrReflexiveNominator struct {
	mu     sync.Mutex
	done   map[int]bool
	armed  map[int]*time.Timer
}

func (n *firstHostOrReflexiveNominator) onValidated(a *Agent, stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair) {
	lc, ok := comp.LocalByID(pair.Local)
	if !ok {
		return
	}
	rc, ok := comp.RemoteByID(pair.Remote)
	if !ok {
		return
	}
	isRelay := lc.Type == candidate.Relayed || rc.Type == candidate.Relayed

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		n.done = make(map[int]bool)
	}
	if n.done[comp.ID] {
		return
	}
	if !isRelay {
		n.done[comp.ID] = true
		if t, ok := n.armed[comp.ID]; ok {
			t.Stop()
			delete(n.armed, comp.ID)
		}
		a.nominate(stream, pair)
		return
	}
	if _, armed := n.armed[comp.ID]; armed {
		return
	}
	timer := time.AfterFunc(800*time.Millisecond, func() {
		n.mu.Lock()
		if n.done[comp.ID] {
			n.mu.Unlock()
			return
		}
		n.done[comp.ID] = true
		n.mu.Unlock()
		a.nominate(stream, pair)
	})
	n.armed[comp.ID] = timer
}

func (n *firstHostOrReflexiveNominator) onChecksCompleted(a *Agent, stream *ice.Stream, comp *ice.Component) {}
