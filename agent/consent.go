package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

// startConsent launches one keepalive goroutine per stream, implementing
// the RFC 7675 consent-freshness loop. It is only called once, from
// finishCompleted, and runs until Free() closes a.close.
//
// Grounded on internal/server/server.go's worker lifecycle: a goroutine
// tracked by the agent's WaitGroup, selecting on a close channel.
func (a *Agent) startConsent() {
	for _, s := range a.Streams() {
		stream := s
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runConsent(stream)
		}()
	}
}

func (a *Agent) runConsent(stream *ice.Stream) {
	log := a.log.With(zap.String("stream", stream.Name))
	ticker := time.NewTicker(a.cfg.ConsentInterval())
	defer ticker.Stop()
	for {
		select {
		case <-a.close:
			return
		case <-ticker.C:
		}
		if a.State() != ice.StateCompleted {
			return
		}
		for _, comp := range stream.Components() {
			for _, pairID := range a.keepAliveSet(stream, comp) {
				a.sendConsentCheck(stream, comp, pairID, log)
			}
		}
	}
}

// keepAliveSet returns the pair ids to refresh for comp, selected by the
// configured ConsentScope.
func (a *Agent) keepAliveSet(stream *ice.Stream, comp *ice.Component) []ice.ID {
	switch a.cfg.ConsentScope() {
	case ice.ConsentAllSucceeded:
		var ids []ice.ID
		for _, p := range stream.ValidPairs() {
			if p.ComponentID == comp.ID {
				ids = append(ids, p.ID)
			}
		}
		return ids
	case ice.ConsentSelectedAndTCP:
		ids := comp.KeepAliveSet()
		for _, p := range stream.ValidPairs() {
			if p.ComponentID != comp.ID {
				continue
			}
			if lc, ok := comp.LocalByID(p.Local); ok && lc.Addr.Proto == candidate.TCP {
				ids = append(ids, p.ID)
			}
		}
		return ids
	default:
		return comp.KeepAliveSet()
	}
}

// sendConsentCheck issues one consent-freshness Binding check for pairID
// if it is still the component's selected pair, using RFC 7675 Section
// 5.1's flat (non-doubling) retransmission profile instead of the
// ordinary connectivity-check schedule.
func (a *Agent) sendConsentCheck(stream *ice.Stream, comp *ice.Component, pairID ice.ID, log *zap.Logger) {
	pair, ok := stream.CheckList().ByID(pairID)
	if !ok || pair.State() != ice.PairSucceeded {
		return
	}
	lc, ok := comp.LocalByID(pair.Local)
	if !ok {
		return
	}
	rc, ok := comp.RemoteByID(pair.Remote)
	if !ok {
		return
	}
	sock := lc.AcquireSocket()
	if sock == nil {
		return
	}

	localUfrag, _ := a.LocalCredentials()
	remoteUfrag, remotePassword := stream.RemoteCredentials()
	attrs := []ice.StunAttribute{
		ice.UsernameAttr(localUfrag, remoteUfrag),
	}
	if a.IsControlling() {
		attrs = append(attrs, ice.ControllingAttr(a.TieBreaker()))
	} else {
		attrs = append(attrs, ice.ControlledAttr(a.TieBreaker()))
	}

	policy := ice.RetransmitPolicy{
		InitialRTO: a.cfg.ConsentOriginalWait(),
		MaxRTO:     a.cfg.ConsentMaxWait(),
		MaxSends:   a.cfg.ConsentMaxRetransmits(),
	}
	timeout := policy.InitialRTO * time.Duration(policy.MaxSends)
	ctx, cancel := context.WithTimeout(context.Background(), timeout+policy.MaxRTO)
	a.transport.StartTransaction(ctx, sock, rc.Addr, attrs, []byte(remotePassword), policy, func(res ice.StunResult) {
		defer cancel()
		a.handleConsentResult(stream, pair, res, log)
	})
}

func (a *Agent) handleConsentResult(stream *ice.Stream, pair *ice.CandidatePair, res ice.StunResult, log *zap.Logger) {
	if res.Timeout || !res.Success {
		log.Debug("consent freshness lost", zap.Uint64("pair", uint64(pair.ID)))
		a.setPairState(stream.Name, pair, ice.PairFailed)
		a.events.Publish(ice.Event{
			Kind: ice.EventConsentFreshness,
			Payload: ice.PairConsentFreshness{
				StreamID: stream.Name,
				Pair:     pair.ID,
				Lost:     true,
			},
		})
		return
	}
	pair.RefreshConsent(time.Now())
	a.events.Publish(ice.Event{
		Kind: ice.EventConsentFreshness,
		Payload: ice.PairConsentFreshness{
			StreamID: stream.Name,
			Pair:     pair.ID,
			Lost:     false,
		},
	})
}
