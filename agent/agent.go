// Package agent implements the ICE agent orchestrator: stream/component
// ownership, the global connectivity-establishment state machine, the
// Pace Maker and connectivity-check server, nomination and consent
// freshness. See the root package "github.com/gortc/iceagent" for the
// candidate/pair data model this package operates on.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
	"github.com/gortc/iceagent/internal/manage"
)

// Options configure a new Agent, mirroring the shape of
// internal/server.Options.
type Options struct {
	Log         *zap.Logger
	Config      *ice.Config    // nil uses ice.NewConfig() defaults
	Transport   ice.Transport  // required
	Harvesters  []ice.Harvester
	Controlling bool
	TieBreaker  uint64 // 0 generates a random 63-bit value
}

// Agent is an ICE agent: it owns one or more media streams, runs their
// Pace Makers, answers incoming connectivity checks and drives the
// global WAITING/RUNNING/COMPLETED/FAILED/TERMINATED state machine of
// RFC 8445 Section 8.
//
// Grounded on internal/server.Server's struct shape: an atomically
// swapped config, a background-activity WaitGroup, a close channel, and
// a constructor that fills defaults before wiring dependents.
type Agent struct {
	log        *zap.Logger
	cfg        *ice.Config
	transport  ice.Transport
	harvesters []ice.Harvester
	events     ice.Bus

	tieBreaker uint64
	controlling int32 // atomic bool: 1 = controlling

	state int32 // atomic ice.AgentState

	mu         sync.RWMutex
	streams    map[string]*ice.Stream
	streamOrder []string
	foundations *ice.FoundationRegistry
	pacers      map[string]*pacer

	close chan struct{}
	wg    sync.WaitGroup

	terminateOnce sync.Once

	creds     localCreds
	nominator nominator
}

// New validates options, fills defaults and returns a ready Agent in
// state WAITING.
func New(o Options) (*Agent, error) {
	if o.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Config == nil {
		o.Config = ice.NewConfig()
	}
	tie := o.TieBreaker
	if tie == 0 {
		var err error
		tie, err = randomTieBreaker()
		if err != nil {
			return nil, errors.Wrap(err, "generate tie-breaker")
		}
	}
	a := &Agent{
		log:         o.Log,
		cfg:         o.Config,
		transport:   o.Transport,
		harvesters:  o.Harvesters,
		tieBreaker:  tie,
		streams:     make(map[string]*ice.Stream),
		foundations: ice.NewFoundationRegistry(),
		pacers:      make(map[string]*pacer),
		close:       make(chan struct{}),
	}
	if o.Controlling {
		a.controlling = 1
	}
	atomic.StoreInt32(&a.state, int32(ice.StateWaiting))
	creds, err := ice.NewCredentials()
	if err != nil {
		return nil, errors.Wrap(err, "generate local credentials")
	}
	a.creds.ufrag = creds.Ufrag
	a.creds.password = creds.Password
	a.nominator = newNominator(o.Config.NominationStrategy())
	return a, nil
}

func randomTieBreaker() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	// RFC 8445 Section 16.1: tie-breaker is a 64-bit value; keep it
	// within 63 bits to match the glossary's description and avoid
	// relying on the sign bit anywhere a caller treats it as signed.
	return binary.BigEndian.Uint64(buf[:]) &^ (1 << 63), nil
}

// IsControlling reports the agent's current role.
func (a *Agent) IsControlling() bool { return atomic.LoadInt32(&a.controlling) == 1 }

// TieBreaker returns the agent's role tie-breaker value.
func (a *Agent) TieBreaker() uint64 { return a.tieBreaker }

// Config returns the agent's live configuration.
func (a *Agent) Config() *ice.Config { return a.cfg }

// State returns the agent's current global state.
func (a *Agent) State() ice.AgentState { return ice.AgentState(atomic.LoadInt32(&a.state)) }

// Events returns a channel of agent-level events. buffer sizes the
// channel; a slow subscriber misses events rather than blocking the
// agent.
func (a *Agent) Events(buffer int) <-chan ice.Event { return a.events.Subscribe(buffer) }

// Unsubscribe stops delivery to a channel previously returned by Events.
func (a *Agent) Unsubscribe(ch <-chan ice.Event) { a.events.Unsubscribe(ch) }

// casState performs the agent's global state transition
// compare-and-swap, so a success path and a timeout path racing to
// declare COMPLETED/FAILED cannot both win.
func (a *Agent) casState(from, to ice.AgentState) bool {
	if !atomic.CompareAndSwapInt32(&a.state, int32(from), int32(to)) {
		return false
	}
	a.events.Publish(ice.Event{
		Kind:    ice.EventStateChanged,
		Payload: ice.AgentStateChanged{From: from, To: to},
	})
	a.log.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

// setPairState transitions pair to s and publishes EventPairStateChanged,
// mirroring the explicit publish-at-the-call-site pattern already used
// for EventPairValidated and EventPairNominated rather than threading a
// bus reference into ice.CandidatePair itself.
func (a *Agent) setPairState(streamName string, pair *ice.CandidatePair, s ice.PairState) {
	from := pair.State()
	if from == s {
		return
	}
	pair.SetState(s)
	a.events.Publish(ice.Event{
		Kind:    ice.EventPairStateChanged,
		Payload: ice.PairStateChanged{StreamID: streamName, Pair: pair.ID, From: from, To: s},
	})
}

// AddStream registers a new, empty media stream.
func (a *Agent) AddStream(name string) *ice.Stream {
	s := ice.NewStream(name)
	a.mu.Lock()
	a.streams[name] = s
	a.streamOrder = append(a.streamOrder, name)
	a.mu.Unlock()
	return s
}

// Stream returns a previously added stream.
func (a *Agent) Stream(name string) (*ice.Stream, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.streams[name]
	return s, ok
}

// Streams returns a snapshot of all streams in registration order.
func (a *Agent) Streams() []*ice.Stream {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*ice.Stream, 0, len(a.streamOrder))
	for _, name := range a.streamOrder {
		out = append(out, a.streams[name])
	}
	return out
}

// Foundations returns the agent's shared foundation registry, used by
// harvesters and by peer-reflexive discovery.
func (a *Agent) Foundations() *ice.FoundationRegistry { return a.foundations }

// Snapshot renders the agent's current state for the management API's
// /status endpoint.
func (a *Agent) Snapshot() manage.AgentSnapshot {
	snap := manage.AgentSnapshot{State: a.State().String()}
	for _, stream := range a.Streams() {
		s := manage.StreamSnapshot{Name: stream.Name}
		if cl := stream.CheckList(); cl != nil {
			for _, pair := range cl.Pairs() {
				s.Pairs = append(s.Pairs, manage.PairSnapshot{
					ID:         uint64(pair.ID),
					Foundation: pair.Foundation,
					State:      pair.State().String(),
					Nominated:  pair.Nominated,
					Priority:   pair.Priority(),
				})
			}
		}
		snap.Streams = append(snap.Streams, s)
	}
	return snap
}

// HarvestHost runs every configured Harvester against comp for the
// given transport and adds the discovered candidates, assigning
// foundations as it goes. Grounded on
// vendor/github.com/gortc/ice/gather.go's defaultGatherer precedence but
// delegated to the pluggable Harvester interface.
func (a *Agent) HarvestHost(ctx context.Context, stream *ice.Stream, comp *ice.Component, proto candidate.TransportType) error {
	for _, h := range a.harvesters {
		cands, err := h.Gather(ctx, comp.ID, proto)
		if err != nil {
			return errors.Wrap(err, "harvest")
		}
		for _, c := range cands {
			c.ComponentID = comp.ID
			a.foundations.Assign(&c.Candidate, c.Addr, ice.Addr{})
			localPref := 65535 - len(comp.LocalCandidates())*2
			c.Priority = ice.Priority(ice.TypePreference(c.Type), localPref, comp.ID)
			comp.AddLocal(c)
		}
	}
	return nil
}

// setControllingLocked flips the agent's role and recomputes every
// pair's priority across every stream atomically with respect to the
// flip, so in-flight checks observe the prior value and any new check
// observes the new one (RFC 8445 Section 7.3.1.1 role conflict
// resolution).
func (a *Agent) setControllingLocked(controlling bool) {
	if controlling {
		atomic.StoreInt32(&a.controlling, 1)
	} else {
		atomic.StoreInt32(&a.controlling, 0)
	}
	role := ice.Controlled
	if controlling {
		role = ice.Controlling
	}
	for _, s := range a.Streams() {
		for _, comp := range s.Components() {
			ice.ComputePriorities(s.CheckList().Pairs(), comp, role)
		}
		ice.Order(s.CheckList().Pairs())
	}
}

// SetControlling sets the agent's role, recomputing every pair priority.
func (a *Agent) SetControlling(controlling bool) { a.setControllingLocked(controlling) }

// StartConnectivityEstablishment builds, prunes and orders every
// stream's check list, computes initial pair states, drains any
// pre-discovered pairs, transitions WAITING -> RUNNING and starts a
// Pace Maker for every check list that is not frozen, per RFC 8445
// Sections 6.1.2 and 6.1.4.
func (a *Agent) StartConnectivityEstablishment(ctx context.Context) error {
	if !a.casState(ice.StateWaiting, ice.StateRunning) {
		return errors.New("agent not in WAITING state")
	}
	streams := a.Streams()
	perStreamLimit := a.cfg.MaxChecklistSize()
	if n := len(streams); n > 0 {
		perStreamLimit = a.cfg.MaxChecklistSize() / n
		if perStreamLimit < 1 {
			perStreamLimit = 1
		}
	}
	role := ice.Controlled
	if a.IsControlling() {
		role = ice.Controlling
	}
	anyPairs := false
	for _, s := range streams {
		var all ice.Pairs
		for _, comp := range s.Components() {
			pairs := ice.BuildPairs(s.Name, comp, a.cfg.AllowLinkToGlobal())
			ice.ComputePriorities(pairs, comp, role)
			ice.Order(pairs)
			pairs = ice.Prune(pairs, comp)
			ice.AssignTCPType(pairs, comp)
			ice.Order(pairs)
			all = append(all, pairs...)
		}
		all = ice.Limit(all, perStreamLimit)
		if len(all) > 0 {
			ice.InitialStates(all)
			anyPairs = true
		}
		s.CheckList().SetPairs(all)
		for _, p := range s.DrainPreDiscovered() {
			s.CheckList().PushTriggered(p.ID)
		}
	}
	for _, s := range streams {
		if !s.CheckList().IsFrozen() {
			a.startPacer(s)
		}
	}
	if !anyPairs {
		// Boundary case: no streams with pending checks means the agent
		// has nothing to converge on.
		a.finishFailed()
	}
	return nil
}

func (a *Agent) startPacer(s *ice.Stream) {
	a.mu.Lock()
	if _, running := a.pacers[s.Name]; running {
		a.mu.Unlock()
		return
	}
	p := newPacer(a, s)
	a.pacers[s.Name] = p
	a.mu.Unlock()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		p.run()
	}()
}

// checkStreamCompletion implements RFC 8445 Section 7.1.3.2.3: once
// every pair on a stream's check list is terminal, evaluate whether the
// stream succeeded, needs a grace timer, or failed, then re-evaluate
// the agent's overall state.
func (a *Agent) checkStreamCompletion(s *ice.Stream) {
	cl := s.CheckList()
	if !cl.AllChecksCompleted() {
		return
	}
	if cl.State() != ice.ChecklistRunning {
		a.evaluateOverallState()
		return
	}
	a.reinitOtherFrozenLists(s)
	if s.CoversAllComponents() && s.AllComponentsNominated() {
		cl.SetState(ice.ChecklistCompleted)
		a.evaluateOverallState()
		return
	}
	if s.CoversAllComponents() {
		// Valid but not yet nominated for every component: give the
		// nominator a last chance to pick a winner now that there is
		// nothing left to check, in case the pair that completed the
		// list failed rather than succeeded.
		for _, comp := range s.Components() {
			a.notifyChecksCompleted(s, comp)
		}
		return
	}
	a.armGraceTimer(s)
}

// reinitOtherFrozenLists implements RFC 8445 Section 7.1.3.2.3: once a
// check list's pairs all reach a terminal state, every other
// still-frozen check list has its initial states recomputed and its
// Pace Maker (re)started, independent of the per-success
// foundation-based unfreeze in unfreezeByFoundation.
func (a *Agent) reinitOtherFrozenLists(done *ice.Stream) {
	for _, s := range a.Streams() {
		if s == done {
			continue
		}
		cl := s.CheckList()
		if !cl.IsFrozen() {
			continue
		}
		ice.InitialStates(cl.Pairs())
		a.startPacer(s)
	}
}

// unfreezeByFoundation implements RFC 8445 Section 7.2.5.3.3's
// cross-check-list clause: on every successful check, any FROZEN pair
// in another stream whose foundation matches a foundation in the
// discovering stream's valid list is promoted to WAITING; if that other
// stream's list was fully frozen and is now not, its Pace Maker starts.
func (a *Agent) unfreezeByFoundation(discovering *ice.Stream) {
	foundations := discovering.ValidFoundations()
	for _, s := range a.Streams() {
		if s == discovering {
			continue
		}
		cl := s.CheckList()
		wasFrozen := cl.IsFrozen()
		unfroze := false
		for _, p := range cl.Pairs() {
			if p.State() == ice.PairFrozen && foundations[p.Foundation] {
				p.SetState(ice.PairWaiting)
				unfroze = true
			}
		}
		if wasFrozen && unfroze {
			a.startPacer(s)
		}
	}
}

func (a *Agent) armGraceTimer(s *ice.Stream) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTimer(a.cfg.ChecklistTimeout())
		defer t.Stop()
		select {
		case <-t.C:
			cl := s.CheckList()
			if cl.State() == ice.ChecklistRunning && !s.CoversAllComponents() {
				cl.SetState(ice.ChecklistFailed)
				a.evaluateOverallState()
			}
		case <-a.close:
		}
	}()
}

func (a *Agent) evaluateOverallState() {
	allCompleted := true
	anyFailed := false
	anySucceeded := false
	for _, s := range a.Streams() {
		switch s.CheckList().State() {
		case ice.ChecklistCompleted:
			anySucceeded = true
		case ice.ChecklistFailed:
			anyFailed = true
			allCompleted = false
		default:
			allCompleted = false
		}
	}
	if allCompleted && len(a.Streams()) > 0 {
		a.finishCompleted()
		return
	}
	if anyFailed && !anySucceeded {
		a.finishFailed()
	}
}

func (a *Agent) finishCompleted() {
	if !a.casState(ice.StateRunning, ice.StateCompleted) {
		return
	}
	if !a.cfg.NoKeepalives() {
		a.startConsent()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTimer(a.cfg.TerminationDelay())
		defer t.Stop()
		select {
		case <-t.C:
			a.casState(ice.StateCompleted, ice.StateTerminated)
		case <-a.close:
		}
	}()
}

func (a *Agent) finishFailed() {
	a.casState(ice.StateRunning, ice.StateFailed)
}

// Free releases the agent: it cancels the keepalive and every Pace
// Maker, transitions to TERMINATED (unless already FAILED) and is a
// no-op if called more than once.
func (a *Agent) Free() {
	a.terminateOnce.Do(func() {
		close(a.close)
		cur := a.State()
		if cur != ice.StateFailed {
			for {
				if a.casState(cur, ice.StateTerminated) {
					break
				}
				cur = a.State()
				if cur == ice.StateTerminated {
					break
				}
			}
		}
		a.wg.Wait()
	})
}
