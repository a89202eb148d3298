package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

// pacer is the Pace Maker for one stream's check list: it issues paced
// ordinary and triggered checks at rate Ta and processes their results,
// RFC 8445 Sections 6.1.4 and 7.2.5.
//
// Grounded on internal/server/server.go's worker goroutine-per-task
// lifecycle (for-select on a close channel, WaitGroup-tracked by the
// owner) and internal/server/context.go's use of a per-task scratch
// value; here the scratch value is the pair itself rather than a pooled
// buffer since checks are comparatively rare events.
type pacer struct {
	agent     *Agent
	stream    *ice.Stream
	startedAt time.Time
}

func newPacer(a *Agent, s *ice.Stream) *pacer {
	return &pacer{agent: a, stream: s, startedAt: time.Now()}
}

func (p *pacer) run() {
	log := p.agent.log.With(zap.String("stream", p.stream.Name))
	cfg := p.agent.cfg
	for {
		select {
		case <-p.agent.close:
			return
		default:
		}
		if p.agent.State() != ice.StateRunning {
			return
		}
		if time.Since(p.startedAt) >= cfg.ChecklistTimeout() {
			log.Debug("pace maker initiation window elapsed")
			return
		}
		active := p.agent.activeChecklistCount()
		if active < 1 {
			active = 1
		}
		sleep := cfg.Ta() * time.Duration(active)
		if sleep > cfg.ChecklistTimeout() {
			sleep = cfg.ChecklistTimeout()
		}
		select {
		case <-time.After(sleep):
		case <-p.agent.close:
			return
		}

		cl := p.stream.CheckList()
		var pair *ice.CandidatePair
		if id, ok := cl.PopTriggered(); ok {
			pair, _ = cl.ByID(id)
		}
		if pair == nil {
			pair, _ = cl.HighestWaiting()
		}
		if pair == nil {
			// End of ordinary checks: nothing pending this tick.
			if !cl.IsActive() {
				return
			}
			continue
		}
		p.issueCheck(pair)
	}
}

// activeChecklistCount returns the number of an agent's check lists
// that currently have at least one WAITING or IN_PROGRESS pair, used to
// scale the Pace Maker's sleep interval per RFC 8445 Section 6.1.4.
func (a *Agent) activeChecklistCount() int {
	n := 0
	for _, s := range a.Streams() {
		if s.CheckList().IsActive() {
			n++
		}
	}
	return n
}

func (p *pacer) issueCheck(pair *ice.CandidatePair) {
	a := p.agent
	comp, ok := p.stream.Component(pair.ComponentID)
	if !ok {
		a.setPairState(p.stream.Name, pair, ice.PairFailed)
		return
	}
	lc, ok := comp.LocalByID(pair.Local)
	if !ok {
		a.setPairState(p.stream.Name, pair, ice.PairFailed)
		return
	}
	rc, ok := comp.RemoteByID(pair.Remote)
	if !ok {
		a.setPairState(p.stream.Name, pair, ice.PairFailed)
		return
	}

	if rc.Addr.Proto == candidate.TCP && rc.TCPType == candidate.TCPActive && rc.Addr.Port == 9 {
		// Unreachable placeholder per RFC 6544; skip without failing.
		return
	}
	if lc.Type == candidate.Relayed && rc.Type == candidate.Host {
		a.setPairState(p.stream.Name, pair, ice.PairFailed)
		a.checkStreamCompletion(p.stream)
		return
	}

	sock := lc.AcquireSocket()
	if sock == nil {
		a.setPairState(p.stream.Name, pair, ice.PairFailed)
		a.checkStreamCompletion(p.stream)
		return
	}

	localUfrag, _ := a.LocalCredentials()
	remoteUfrag, remotePassword := p.stream.RemoteCredentials()

	attrs := []ice.StunAttribute{
		ice.PriorityAttr(lc.PeerReflexivePriority()),
		ice.UsernameAttr(localUfrag, remoteUfrag),
	}
	if a.IsControlling() {
		attrs = append(attrs, ice.ControllingAttr(a.TieBreaker()))
		if pair.Nominated {
			attrs = append(attrs, ice.UseCandidateAttr())
		}
	} else {
		attrs = append(attrs, ice.ControlledAttr(a.TieBreaker()))
	}

	a.setPairState(p.stream.Name, pair, ice.PairInProgress)
	useCandidateSent := a.IsControlling() && pair.Nominated

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ChecklistTimeout()+5*time.Second)
	tx := a.transport.StartTransaction(ctx, sock, rc.Addr, attrs, []byte(remotePassword), ice.RetransmitPolicy{}, func(res ice.StunResult) {
		defer cancel()
		p.handleResult(pair, comp, lc, rc, res, useCandidateSent)
	})
	if tx != nil {
		pair.SetTransaction(tx.ID())
	}
}

func (p *pacer) handleResult(pair *ice.CandidatePair, comp *ice.Component, lc *ice.LocalCandidate, rc *ice.RemoteCandidate, res ice.StunResult, useCandidateSent bool) {
	a := p.agent
	stream := p.stream
	log := a.log.With(zap.String("stream", stream.Name), zap.Uint64("pair", uint64(pair.ID)))

	if res.Timeout {
		a.setPairState(stream.Name, pair, ice.PairFailed)
		a.checkStreamCompletion(stream)
		return
	}

	if res.RoleConflict {
		a.SetControlling(!a.IsControlling())
		stream.CheckList().PushTriggered(pair.ID)
		log.Debug("role conflict, flipped role")
		return
	}

	if !res.Success {
		a.setPairState(stream.Name, pair, ice.PairFailed)
		a.checkStreamCompletion(stream)
		return
	}

	// Symmetric-address check: the response must have arrived from the
	// address the request was sent to.
	if !res.From.Equal(rc.Addr) {
		a.setPairState(stream.Name, pair, ice.PairFailed)
		a.checkStreamCompletion(stream)
		return
	}

	mapped := res.MappedAddr
	mapped.Proto = lc.Addr.Proto

	local, ok := comp.FindLocalByAddr(mapped)
	if !ok {
		local = ice.NewLocalCandidate(ice.Candidate{
			Addr:        mapped,
			Type:        candidate.PeerReflexive,
			ComponentID: comp.ID,
			Base:        lc.ID,
			Priority:    lc.PeerReflexivePriority(),
			Ufrag:       lc.Ufrag,
		}, "prflx")
		a.foundations.Assign(&local.Candidate, lc.Addr, ice.Addr{})
		comp.AddLocal(local)
	}

	valid, existed := stream.CheckList().Find(local.ID, pair.Remote)
	if !existed {
		valid = ice.NewCandidatePair(stream.Name, pair.ComponentID, local.ID, pair.Remote, local.Foundation+rc.Foundation)
		role := ice.Controlled
		if a.IsControlling() {
			role = ice.Controlling
		}
		ice.ComputePriorities(ice.Pairs{valid}, comp, role)
		stream.CheckList().Add(valid)
	}
	a.setPairState(stream.Name, pair, ice.PairSucceeded)
	valid.Valid = true
	stream.AddValidPair(valid)
	a.events.Publish(ice.Event{Kind: ice.EventPairValidated, Payload: ice.PairValidated{StreamID: stream.Name, Pair: valid.ID}})

	a.unfreezeByFoundationForPair(stream, pair.Foundation)
	a.unfreezeByFoundation(stream)

	if a.IsControlling() && (useCandidateSent || pair.UseCandidateSent) {
		a.confirmNomination(stream, comp, valid)
	}
	if !a.IsControlling() && pair.UseCandidateReceived {
		a.confirmNomination(stream, comp, valid)
	}
	if selID, has := comp.Selected(); has && selID == pair.ID {
		pair.RefreshConsent(time.Now())
	}

	a.notifyNominator(stream, comp, valid)
	a.checkStreamCompletion(stream)
}

// unfreezeByFoundationForPair implements RFC 8445 Section 7.2.5.3.3:
// every FROZEN pair sharing the checked pair's foundation, within the
// same stream, is promoted to WAITING.
func (a *Agent) unfreezeByFoundationForPair(stream *ice.Stream, foundation string) {
	for _, p := range stream.CheckList().Pairs() {
		if p.State() == ice.PairFrozen && p.Foundation == foundation {
			p.SetState(ice.PairWaiting)
		}
	}
}
