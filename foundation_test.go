package ice

import (
	"net"
	"testing"

	"github.com/gortc/iceagent/candidate"
)

func TestAssignSameKeyGetsSameFoundation(t *testing.T) {
	r := NewFoundationRegistry()
	base := Addr{IP: net.ParseIP("10.0.0.1")}

	a := &Candidate{Type: candidate.Host, Addr: Addr{Proto: candidate.UDP}}
	b := &Candidate{Type: candidate.Host, Addr: Addr{Proto: candidate.UDP}}
	r.Assign(a, base, Addr{})
	r.Assign(b, base, Addr{})

	if a.Foundation != b.Foundation {
		t.Errorf("expected same foundation for identical key, got %q and %q", a.Foundation, b.Foundation)
	}
}

func TestAssignDifferentTypeGetsDifferentFoundation(t *testing.T) {
	r := NewFoundationRegistry()
	base := Addr{IP: net.ParseIP("10.0.0.1")}

	host := &Candidate{Type: candidate.Host, Addr: Addr{Proto: candidate.UDP}}
	srflx := &Candidate{Type: candidate.ServerReflexive, Addr: Addr{Proto: candidate.UDP}}
	r.Assign(host, base, Addr{})
	r.Assign(srflx, base, Addr{})

	if host.Foundation == srflx.Foundation {
		t.Error("expected different candidate types to get different foundations")
	}
}

func TestAssignDifferentServerGetsDifferentFoundation(t *testing.T) {
	r := NewFoundationRegistry()
	base := Addr{IP: net.ParseIP("10.0.0.1")}

	a := &Candidate{Type: candidate.ServerReflexive, Addr: Addr{Proto: candidate.UDP}}
	b := &Candidate{Type: candidate.ServerReflexive, Addr: Addr{Proto: candidate.UDP}}
	r.Assign(a, base, Addr{IP: net.ParseIP("203.0.113.1")})
	r.Assign(b, base, Addr{IP: net.ParseIP("203.0.113.2")})

	if a.Foundation == b.Foundation {
		t.Error("expected different STUN/TURN servers to get different foundations")
	}
}

func TestObtainPeerReflexiveFoundationStartsAt10000AndIncrements(t *testing.T) {
	r := NewFoundationRegistry()
	first := r.ObtainPeerReflexiveFoundation()
	second := r.ObtainPeerReflexiveFoundation()
	if first != "10000" {
		t.Errorf("expected first peer-reflexive foundation to be 10000, got %q", first)
	}
	if second != "10001" {
		t.Errorf("expected second peer-reflexive foundation to be 10001, got %q", second)
	}
}

func TestObtainPeerReflexiveFoundationNeverCollidesWithAssign(t *testing.T) {
	r := NewFoundationRegistry()
	for i := 0; i < 20; i++ {
		c := &Candidate{Type: candidate.Host, Addr: Addr{Proto: candidate.UDP}}
		r.Assign(c, Addr{IP: net.ParseIP("10.0.0.1")}, Addr{})
	}
	pr := r.ObtainPeerReflexiveFoundation()
	if pr != "10000" {
		t.Errorf("expected peer-reflexive counter to stay independent of Assign's counter, got %q", pr)
	}
}
