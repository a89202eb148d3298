package agent

import (
	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

// ListenStream wires the transport's incoming-request handler for every
// local candidate's socket in comp to this agent's connectivity-check
// server. Incoming requests and the responses to them are authenticated
// with this agent's own local password, per RFC 8445 Section 7.3.
func (a *Agent) ListenStream(stream *ice.Stream, comp *ice.Component) {
	_, localPassword := a.LocalCredentials()
	for _, lc := range comp.LocalCandidates() {
		sock := lc.AcquireSocket()
		if sock == nil {
			continue
		}
		local := lc
		a.transport.ListenRequests(sock, []byte(localPassword), func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
			return a.handleIncomingRequest(stream, comp, local, from, attrs)
		})
	}
}

// handleIncomingRequest resolves the local candidate (already known from
// which socket the request arrived on), finds or creates the matching
// remote candidate, locates or creates the pair, records USE-CANDIDATE,
// and either buffers the pair for later (agent not yet RUNNING) or runs
// the triggered-check logic. The caller (stunstack's Transport) has
// already verified the request's MESSAGE-INTEGRITY, so by the time this
// runs the request is an authenticated Binding Request per RFC 8445
// Section 7.3.
func (a *Agent) handleIncomingRequest(stream *ice.Stream, comp *ice.Component, local *ice.LocalCandidate, from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
	useCandidate := ice.HasAttr(attrs, ice.AttrUseCandidate)
	priority := uint32(0)
	if p, ok := ice.FindAttr(attrs, ice.AttrPriority); ok {
		priority = ice.Uint32Value(p)
	}

	remote, ok := comp.FindRemoteByAddr(from)
	if !ok {
		remote = ice.NewRemoteCandidate(ice.Candidate{
			Addr:        from,
			Type:        candidate.PeerReflexive,
			ComponentID: comp.ID,
			Priority:    priority,
		})
		remote.Foundation = a.foundations.ObtainPeerReflexiveFoundation()
		if host, ok := findMatchingHostUfrag(comp, from); ok {
			remote.Ufrag = host
		}
		comp.AddRemote(remote)
		a.log.Debug("discovered peer-reflexive remote candidate",
			zap.String("stream", stream.Name), zap.Stringer("addr", from))
	}

	pair, existed := stream.CheckList().Find(local.ID, remote.ID)
	if !existed {
		pair = ice.NewCandidatePair(stream.Name, comp.ID, local.ID, remote.ID, local.Foundation+remote.Foundation)
		role := ice.Controlled
		if a.IsControlling() {
			role = ice.Controlling
		}
		ice.ComputePriorities(ice.Pairs{pair}, comp, role)
	}
	if useCandidate {
		pair.UseCandidateReceived = true
	}

	if a.State() == ice.StateWaiting {
		stream.EnqueuePreDiscovered(pair)
	} else if pair.State() != ice.PairFailed {
		a.triggeredCheck(stream, comp, pair, existed)
	}

	resp := []ice.StunAttribute{
		xorMappedAddressAttr(from),
	}
	return resp, nil
}

// findMatchingHostUfrag returns the ufrag of a HOST remote candidate on
// comp sharing from's IP, used to seed a peer-reflexive remote
// candidate's ufrag per RFC 8445 Section 7.3.1.3.
func findMatchingHostUfrag(comp *ice.Component, from ice.Addr) (string, bool) {
	for _, rc := range comp.RemoteCandidates() {
		if rc.Type == candidate.Host && rc.Addr.IP.Equal(from.IP) && rc.Ufrag != "" {
			return rc.Ufrag, true
		}
	}
	return "", false
}

// xorMappedAddressAttr is a placeholder encoder: the concrete
// XOR-MAPPED-ADDRESS wire encoding (magic-cookie XOR over IP/port) is
// owned by package stunstack, which already must have the transaction
// id in scope to do the XOR correctly; this attribute carries the plain
// mapped address and is re-encoded by the transport before framing.
func xorMappedAddressAttr(addr ice.Addr) ice.StunAttribute {
	return ice.StunAttribute{Type: ice.AttrXORMappedAddress, Value: []byte(addr.String())}
}

// triggeredCheck implements the triggered-check rules of RFC 8445
// Section 7.3.1.4.
func (a *Agent) triggeredCheck(stream *ice.Stream, comp *ice.Component, pair *ice.CandidatePair, existed bool) {
	cl := stream.CheckList()
	if existed {
		switch pair.State() {
		case ice.PairSucceeded:
			if pair.UseCandidateReceived && !a.IsControlling() {
				valid, ok := cl.Find(pair.Local, pair.Remote)
				if ok {
					a.confirmNomination(stream, comp, valid)
				}
				a.checkStreamCompletion(stream)
			}
		case ice.PairInProgress:
			pair.ClearTransaction()
			pair.SetState(ice.PairWaiting)
			cl.PushTriggered(pair.ID)
		default:
			pair.SetState(ice.PairWaiting)
			cl.PushTriggered(pair.ID)
		}
	} else {
		wasFrozen := cl.IsFrozen()
		pair.SetState(ice.PairWaiting)
		cl.Add(pair)
		cl.PushTriggered(pair.ID)
		if wasFrozen {
			a.startPacer(stream)
		}
	}
	if !cl.IsFrozen() {
		a.startPacer(stream)
	}
}
