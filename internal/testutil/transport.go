package testutil

import (
	"context"
	"time"

	ice "github.com/gortc/iceagent"
)

// FakeTransaction is a no-op ice.StunTransaction.
type FakeTransaction struct {
	TxID      [12]byte
	Cancelled bool
}

// ID implements ice.StunTransaction.
func (t *FakeTransaction) ID() [12]byte { return t.TxID }

// Cancel implements ice.StunTransaction.
func (t *FakeTransaction) Cancel() { t.Cancelled = true }

// FakeTransport is a minimal ice.Transport that never sends anything on
// the wire, for exercising agent-package logic without a real socket.
type FakeTransport struct {
	// OnStart, if set, is invoked synchronously by StartTransaction
	// instead of the default no-op (the result callback is never called,
	// mirroring a request that never gets a response).
	OnStart func(ctx context.Context, sock ice.Socket, dst ice.Addr, attrs []ice.StunAttribute, key []byte, policy ice.RetransmitPolicy, result func(ice.StunResult)) ice.StunTransaction

	// LastListenKey records the integrityKey passed to the most recent
	// ListenRequests call, so tests can assert it was wired through
	// rather than discarded.
	LastListenKey []byte
}

// StartTransaction implements ice.Transport.
func (f *FakeTransport) StartTransaction(ctx context.Context, sock ice.Socket, dst ice.Addr, attrs []ice.StunAttribute, key []byte, policy ice.RetransmitPolicy, result func(ice.StunResult)) ice.StunTransaction {
	if f.OnStart != nil {
		return f.OnStart(ctx, sock, dst, attrs, key, policy, result)
	}
	return &FakeTransaction{}
}

// ListenRequests implements ice.Transport.
func (f *FakeTransport) ListenRequests(sock ice.Socket, integrityKey []byte, handler func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error)) {
	f.LastListenKey = integrityKey
}

// FakeSocket is a no-op ice.Socket for tests that only need something
// for LocalCandidate.AcquireSocket to return.
type FakeSocket struct {
	Addr ice.Addr
	Sent [][]byte
}

// Send implements ice.Socket.
func (s *FakeSocket) Send(b []byte, dst ice.Addr) error {
	s.Sent = append(s.Sent, b)
	return nil
}

// SetReadDeadline implements ice.Socket.
func (s *FakeSocket) SetReadDeadline(t time.Time) error { return nil }

// Recv implements ice.Socket.
func (s *FakeSocket) Recv() ([]byte, ice.Addr, error) { return nil, ice.Addr{}, nil }

// LocalAddr implements ice.Socket.
func (s *FakeSocket) LocalAddr() ice.Addr { return s.Addr }

// Close implements ice.Socket.
func (s *FakeSocket) Close() error { return nil }
