package agent

import (
	"testing"
	"time"

	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/internal/testutil"
)

func newTestAgent(t *testing.T, controlling bool) *Agent {
	t.Helper()
	a, err := New(Options{
		Log:         zap.NewNop(),
		Transport:   &testutil.FakeTransport{},
		Controlling: controlling,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Free)
	return a
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(Options{Log: zap.NewNop()}); err == nil {
		t.Fatal("expected an error when Transport is nil")
	}
}

func TestNewDefaults(t *testing.T) {
	a := newTestAgent(t, true)
	if !a.IsControlling() {
		t.Error("expected controlling role")
	}
	if a.State() != ice.StateWaiting {
		t.Errorf("unexpected initial state %v", a.State())
	}
	if a.TieBreaker() == 0 {
		t.Error("expected a non-zero generated tie-breaker")
	}
}

func TestAddStreamAndLookup(t *testing.T) {
	a := newTestAgent(t, true)
	s := a.AddStream("audio")
	if s.Name != "audio" {
		t.Errorf("unexpected stream name %q", s.Name)
	}
	got, ok := a.Stream("audio")
	if !ok || got != s {
		t.Fatal("expected Stream to find the added stream")
	}
	if len(a.Streams()) != 1 {
		t.Errorf("expected 1 registered stream, got %d", len(a.Streams()))
	}
}

func TestSetPairStatePublishesEvent(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	pair := ice.NewCandidatePair("audio", 1, 1, 2, "f1")
	stream.CheckList().Add(pair)

	ch := a.Events(4)
	defer a.Unsubscribe(ch)

	a.setPairState(stream.Name, pair, ice.PairInProgress)
	a.setPairState(stream.Name, pair, ice.PairSucceeded)

	var got []ice.PairStateChanged
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			payload, ok := ev.Payload.(ice.PairStateChanged)
			if !ok || ev.Kind != ice.EventPairStateChanged {
				t.Fatalf("unexpected event %+v", ev)
			}
			got = append(got, payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for EventPairStateChanged")
		}
	}
	if got[0].From != ice.PairFrozen || got[0].To != ice.PairInProgress {
		t.Errorf("unexpected first transition %+v", got[0])
	}
	if got[1].From != ice.PairInProgress || got[1].To != ice.PairSucceeded {
		t.Errorf("unexpected second transition %+v", got[1])
	}
	for _, payload := range got {
		if payload.StreamID != "audio" || payload.Pair != pair.ID {
			t.Errorf("unexpected stream/pair in payload %+v", payload)
		}
	}
	if pair.State() != ice.PairSucceeded {
		t.Errorf("pair state not applied, got %v", pair.State())
	}
}

func TestSetPairStateNoopWhenUnchanged(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	pair := ice.NewCandidatePair("audio", 1, 1, 2, "f1")
	stream.CheckList().Add(pair)
	pair.SetState(ice.PairSucceeded)

	ch := a.Events(4)
	defer a.Unsubscribe(ch)

	a.setPairState(stream.Name, pair, ice.PairSucceeded)
	select {
	case ev := <-ch:
		t.Fatalf("expected no event for a no-op transition, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	a := newTestAgent(t, true)
	ch := a.Events(1)
	a.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Unsubscribe")
	}
}

func TestAgentSnapshot(t *testing.T) {
	a := newTestAgent(t, true)
	stream := a.AddStream("audio")
	pair := ice.NewCandidatePair("audio", 1, 1, 2, "f1")
	pair.SetPriority(42)
	pair.Nominated = true
	stream.CheckList().Add(pair)
	a.setPairState(stream.Name, pair, ice.PairSucceeded)

	snap := a.Snapshot()
	if snap.State != ice.StateWaiting.String() {
		t.Errorf("unexpected snapshot state %q", snap.State)
	}
	if len(snap.Streams) != 1 || snap.Streams[0].Name != "audio" {
		t.Fatalf("unexpected streams in snapshot: %+v", snap.Streams)
	}
	pairs := snap.Streams[0].Pairs
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair in snapshot, got %d", len(pairs))
	}
	if pairs[0].State != "succeeded" || !pairs[0].Nominated || pairs[0].Priority != 42 {
		t.Errorf("unexpected pair snapshot %+v", pairs[0])
	}
}
