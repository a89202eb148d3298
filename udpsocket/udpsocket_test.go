package udpsocket

import (
	"testing"
	"time"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

func TestListenDefaultsNetwork(t *testing.T) {
	s, err := Listen(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if s.LocalAddr().IP.String() != "127.0.0.1" {
		t.Errorf("unexpected local IP %v", s.LocalAddr().IP)
	}
	if s.LocalAddr().Proto != candidate.UDP {
		t.Errorf("unexpected proto %v", s.LocalAddr().Proto)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	a, err := Listen(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	b, err := Listen(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Close() }()

	payload := []byte("connectivity check")
	if err := a.Send(payload, b.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	if err := b.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	got, from, err := b.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("unexpected payload %q", got)
	}
	if !from.Equal(a.LocalAddr()) {
		t.Errorf("unexpected source address %v, want %v", from, a.LocalAddr())
	}
}

func TestRecvDeadlineExceeded(t *testing.T) {
	s, err := Listen(Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Recv(); err == nil {
		t.Fatal("expected a deadline-exceeded error")
	}
}

var _ ice.Socket = (*Socket)(nil)
