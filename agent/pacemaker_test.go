package agent

import (
	"net"
	"testing"
	"time"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
	"github.com/gortc/iceagent/internal/testutil"
)

func newTestPair(t *testing.T, stream *ice.Stream, comp *ice.Component) (*ice.CandidatePair, *ice.LocalCandidate, *ice.RemoteCandidate) {
	t.Helper()
	lc := ice.NewLocalCandidate(ice.Candidate{
		Addr:        ice.Addr{IP: net.ParseIP("10.0.0.1"), Port: 1000, Proto: candidate.UDP},
		Type:        candidate.Host,
		ComponentID: comp.ID,
		Priority:    ice.Priority(ice.TypePreference(candidate.Host), 15, comp.ID),
	}, "host")
	lc.SetSocket(&testutil.FakeSocket{Addr: lc.Addr})
	comp.AddLocal(lc)

	rc := ice.NewRemoteCandidate(ice.Candidate{
		Addr:        ice.Addr{IP: net.ParseIP("10.0.0.2"), Port: 2000, Proto: candidate.UDP},
		Type:        candidate.Host,
		ComponentID: comp.ID,
		Priority:    ice.Priority(ice.TypePreference(candidate.Host), 15, comp.ID),
	})
	comp.AddRemote(rc)

	pair := ice.NewCandidatePair(stream.Name, comp.ID, lc.ID, rc.ID, lc.Foundation+rc.Foundation)
	stream.CheckList().Add(pair)
	return pair, lc, rc
}

func TestIssueCheckFailsWithoutComponent(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	pair := ice.NewCandidatePair(stream.Name, 1, 1, 2, "f1")
	stream.CheckList().Add(pair)

	p := newPacer(a, stream)
	p.issueCheck(pair)

	if pair.State() != ice.PairFailed {
		t.Errorf("expected PairFailed, got %v", pair.State())
	}
}

func TestIssueCheckFailsWhenRelayedToHost(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	comp := ice.NewComponent(stream.Name, 1)
	stream.AddComponent(comp)
	pair, lc, rc := newTestPair(t, stream, comp)
	lc.Type = candidate.Relayed
	rc.Type = candidate.Host

	p := newPacer(a, stream)
	p.issueCheck(pair)

	if pair.State() != ice.PairFailed {
		t.Errorf("expected PairFailed for relayed-to-host pairing, got %v", pair.State())
	}
}

func TestHandleResultSuccessValidatesPair(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	comp := ice.NewComponent(stream.Name, 1)
	stream.AddComponent(comp)
	pair, lc, rc := newTestPair(t, stream, comp)

	ch := a.Events(16)
	defer a.Unsubscribe(ch)

	p := newPacer(a, stream)
	p.handleResult(pair, comp, lc, rc, ice.StunResult{
		Success:    true,
		MappedAddr: lc.Addr,
		From:       rc.Addr,
	}, false)

	if pair.State() != ice.PairSucceeded {
		t.Errorf("expected PairSucceeded, got %v", pair.State())
	}

	var sawValidated, sawStateChanged bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case ice.EventPairValidated:
				sawValidated = true
			case ice.EventPairStateChanged:
				sawStateChanged = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !sawValidated || !sawStateChanged {
		t.Errorf("expected both EventPairValidated and EventPairStateChanged, got validated=%v stateChanged=%v",
			sawValidated, sawStateChanged)
	}
}

func TestHandleResultTimeoutFailsPair(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	comp := ice.NewComponent(stream.Name, 1)
	stream.AddComponent(comp)
	pair, lc, rc := newTestPair(t, stream, comp)

	p := newPacer(a, stream)
	p.handleResult(pair, comp, lc, rc, ice.StunResult{Timeout: true}, false)

	if pair.State() != ice.PairFailed {
		t.Errorf("expected PairFailed on timeout, got %v", pair.State())
	}
}

func TestHandleResultRoleConflictFlipsRole(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	comp := ice.NewComponent(stream.Name, 1)
	stream.AddComponent(comp)
	pair, lc, rc := newTestPair(t, stream, comp)

	wasControlling := a.IsControlling()
	p := newPacer(a, stream)
	p.handleResult(pair, comp, lc, rc, ice.StunResult{RoleConflict: true}, false)

	if a.IsControlling() == wasControlling {
		t.Error("expected role to flip on a role conflict response")
	}
	if id, ok := stream.CheckList().PopTriggered(); !ok || id != pair.ID {
		t.Error("expected the pair to be re-queued as a triggered check")
	}
}

func TestHandleResultMismatchedSourceFailsPair(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	comp := ice.NewComponent(stream.Name, 1)
	stream.AddComponent(comp)
	pair, lc, rc := newTestPair(t, stream, comp)

	p := newPacer(a, stream)
	p.handleResult(pair, comp, lc, rc, ice.StunResult{
		Success:    true,
		MappedAddr: lc.Addr,
		From:       ice.Addr{IP: net.ParseIP("10.0.0.99"), Port: 9999, Proto: candidate.UDP},
	}, false)

	if pair.State() != ice.PairFailed {
		t.Errorf("expected PairFailed on symmetric-address mismatch, got %v", pair.State())
	}
}
