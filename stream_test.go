package ice

import "testing"

func TestStreamAddComponentAndLookup(t *testing.T) {
	s := NewStream("audio")
	c := NewComponent(s.Name, 1)
	s.AddComponent(c)

	got, ok := s.Component(1)
	if !ok || got != c {
		t.Fatal("expected to find the registered component")
	}
	if len(s.Components()) != 1 {
		t.Errorf("expected 1 component, got %d", len(s.Components()))
	}
}

func TestStreamRemoteCredentials(t *testing.T) {
	s := NewStream("audio")
	ufrag, pwd := s.RemoteCredentials()
	if ufrag != "" || pwd != "" {
		t.Error("expected empty credentials before SetRemoteCredentials")
	}
	s.SetRemoteCredentials("u", "p")
	ufrag, pwd = s.RemoteCredentials()
	if ufrag != "u" || pwd != "p" {
		t.Errorf("got (%q, %q), want (u, p)", ufrag, pwd)
	}
}

func TestStreamAddValidPairIsIdempotent(t *testing.T) {
	s := NewStream("audio")
	p := NewCandidatePair(s.Name, 1, 1, 2, "f1")
	s.AddValidPair(p)
	s.AddValidPair(p)
	if len(s.ValidPairs()) != 1 {
		t.Errorf("expected AddValidPair to be idempotent, got %d entries", len(s.ValidPairs()))
	}
}

func TestStreamValidFoundations(t *testing.T) {
	s := NewStream("audio")
	p1 := NewCandidatePair(s.Name, 1, 1, 2, "fA")
	p2 := NewCandidatePair(s.Name, 2, 3, 4, "fB")
	s.AddValidPair(p1)
	s.AddValidPair(p2)

	f := s.ValidFoundations()
	if !f["fA"] || !f["fB"] {
		t.Errorf("expected both foundations present, got %v", f)
	}
}

func TestStreamCoversAllComponents(t *testing.T) {
	s := NewStream("audio")
	s.AddComponent(NewComponent(s.Name, 1))
	s.AddComponent(NewComponent(s.Name, 2))

	if s.CoversAllComponents() {
		t.Error("expected false with no valid pairs yet")
	}
	s.AddValidPair(NewCandidatePair(s.Name, 1, 1, 2, "f1"))
	if s.CoversAllComponents() {
		t.Error("expected false until every component has a valid pair")
	}
	s.AddValidPair(NewCandidatePair(s.Name, 2, 3, 4, "f2"))
	if !s.CoversAllComponents() {
		t.Error("expected true once every component has a valid pair")
	}
}

func TestStreamAllComponentsNominated(t *testing.T) {
	s := NewStream("audio")
	s.AddComponent(NewComponent(s.Name, 1))
	s.AddComponent(NewComponent(s.Name, 2))

	p1 := NewCandidatePair(s.Name, 1, 1, 2, "f1")
	s.AddValidPair(p1)
	p2 := NewCandidatePair(s.Name, 2, 3, 4, "f2")
	s.AddValidPair(p2)

	if s.AllComponentsNominated() {
		t.Error("expected false before any pair is nominated")
	}
	p1.Nominated = true
	if s.AllComponentsNominated() {
		t.Error("expected false until every component has a nominated pair")
	}
	p2.Nominated = true
	if !s.AllComponentsNominated() {
		t.Error("expected true once every component has a nominated valid pair")
	}
}

func TestStreamPreDiscoveredQueue(t *testing.T) {
	s := NewStream("audio")
	p := NewCandidatePair(s.Name, 1, 1, 2, "f1")
	s.EnqueuePreDiscovered(p)

	drained := s.DrainPreDiscovered()
	if len(drained) != 1 || drained[0] != p {
		t.Fatal("expected the enqueued pair to be drained")
	}
	if len(s.DrainPreDiscovered()) != 0 {
		t.Error("expected the queue to be empty after draining")
	}
}
