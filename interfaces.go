package ice

import (
	"context"
	"time"

	"github.com/gortc/iceagent/candidate"
)

// Socket sends and receives raw datagrams on behalf of a local candidate.
// Implementations are provided by package udpsocket for UDP and by a
// TCP-simulated-connection adapter for TCP candidates.
type Socket interface {
	// Send writes b to dst.
	Send(b []byte, dst Addr) error
	// SetReadDeadline bounds the next Recv call, mirroring
	// net.PacketConn's deadline semantics.
	SetReadDeadline(t time.Time) error
	// Recv blocks for the next datagram, returning its payload and
	// source address.
	Recv() (b []byte, from Addr, err error)
	// LocalAddr is the address the socket is bound to.
	LocalAddr() Addr
	// Close releases the socket.
	Close() error
}

// StunTransaction is an in-flight outgoing STUN request, returned by
// Transport.StartTransaction.
type StunTransaction interface {
	// ID is the 96-bit STUN transaction id.
	ID() [12]byte
	// Cancel aborts retransmission without invoking the callback again.
	Cancel()
}

// StunResult carries the outcome of a completed or timed-out
// transaction, delivered to the callback passed to StartTransaction.
type StunResult struct {
	Success     bool
	Timeout     bool
	RoleConflict bool // STUN 487
	MappedAddr  Addr
	ErrorCode   int
	From        Addr
}

// RetransmitPolicy controls the RTO/Rc schedule StartTransaction uses for
// a single transaction, per RFC 5389 Section 7.2.1. The default (zero)
// value selects the ordinary connectivity-check schedule; package agent's
// consent-freshness checks (RFC 7675 Section 5.1) pass a non-doubling,
// higher-Rc policy instead.
type RetransmitPolicy struct {
	// InitialRTO is the delay before the first retransmission.
	InitialRTO time.Duration
	// MaxRTO caps the retransmission interval; zero means keep doubling
	// (RFC 5389's Appendix B default of 1.6s).
	MaxRTO time.Duration
	// MaxSends is Rc, the total number of times the request is sent
	// (including the original transmission).
	MaxSends int
}

// Transport performs RFC 5389 Section 7.2.1-paced STUN request/response
// exchanges and receives incoming STUN indications/requests. Implemented
// by package stunstack against gortc.io/stun.
type Transport interface {
	// StartTransaction sends a STUN Binding request over sock to dst
	// with the given attributes (USERNAME, PRIORITY, ICE-CONTROLLING /
	// ICE-CONTROLLED, USE-CANDIDATE are added by the caller via attrs).
	// If integrityKey is non-empty the request carries MESSAGE-INTEGRITY
	// keyed by it; FINGERPRINT is added whenever the agent's AlwaysSign
	// configuration is set. policy selects the RTO/Rc retransmission
	// schedule; its zero value is the ordinary connectivity-check
	// schedule. result is invoked exactly once.
	StartTransaction(ctx context.Context, sock Socket, dst Addr, attrs []StunAttribute, integrityKey []byte, policy RetransmitPolicy, result func(StunResult)) StunTransaction

	// ListenRequests registers a handler for incoming STUN Binding
	// requests on sock. Incoming requests are authenticated against
	// integrityKey (RFC 5389 Section 10.1.2) when it is non-empty;
	// requests that fail the check are dropped rather than handed to
	// handler. handler returns the attributes for the success response,
	// or an error to send a STUN error response. The success response
	// is itself signed with integrityKey when it is non-empty.
	ListenRequests(sock Socket, integrityKey []byte, handler func(from Addr, attrs []StunAttribute) ([]StunAttribute, error))
}

// StunAttribute is a decoded (type, value) STUN attribute pair, used to
// keep the ice/agent packages independent of the concrete STUN codec.
type StunAttribute struct {
	Type  uint16
	Value []byte
}

// Harvester discovers local candidates for a component, RFC 8445
// Section 5.1.1. HostHarvester (package gather) enumerates local
// interfaces; a server-reflexive or relayed harvester would query a
// STUN/TURN server.
type Harvester interface {
	Gather(ctx context.Context, componentID int, proto candidate.TransportType) ([]*LocalCandidate, error)
}
