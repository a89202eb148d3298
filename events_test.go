package ice

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	var b Bus
	ch := b.Subscribe(4)
	b.Publish(Event{Kind: EventPairStateChanged, Payload: PairStateChanged{
		StreamID: "audio", From: PairFrozen, To: PairWaiting,
	}})
	select {
	case ev := <-ch:
		payload, ok := ev.Payload.(PairStateChanged)
		if !ok {
			t.Fatalf("unexpected payload type %T", ev.Payload)
		}
		if payload.StreamID != "audio" || payload.From != PairFrozen || payload.To != PairWaiting {
			t.Errorf("unexpected payload %+v", payload)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	var b Bus
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)
	b.Publish(Event{Kind: EventStateChanged})
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	var b Bus
	ch := b.Subscribe(1)
	b.Publish(Event{Kind: EventStateChanged})
	b.Publish(Event{Kind: EventStateChanged}) // dropped, buffer full
	<-ch
	select {
	case <-ch:
		t.Error("expected the second event to have been dropped")
	default:
	}
}

func TestBusFanOut(t *testing.T) {
	var b Bus
	a := b.Subscribe(1)
	c := b.Subscribe(1)
	b.Publish(Event{Kind: EventPairNominated})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case <-ch:
		default:
			t.Error("expected every subscriber to receive the event")
		}
	}
}

func TestAgentStateString(t *testing.T) {
	for _, tc := range []struct {
		state AgentState
		want  string
	}{
		{StateWaiting, "waiting"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{StateTerminated, "terminated"},
	} {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("AgentState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
