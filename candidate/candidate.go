// Package candidate contains the small enumerations shared by ICE
// candidates: type, transport and TCP role.
package candidate

// Type encodes the kind of candidate, as defined by RFC 8445 Section 5.1.1.
type Type byte

// Set of candidate types, ordered by increasing desirability is not
// implied by the iota value; see Priority.TypePreference for that order.
const (
	Host Type = iota
	ServerReflexive
	PeerReflexive
	Relayed
)

var typeToStr = map[Type]string{
	Host:            "host",
	ServerReflexive: "srflx",
	PeerReflexive:   "prflx",
	Relayed:         "relay",
}

func (t Type) String() string {
	if s, ok := typeToStr[t]; ok {
		return s
	}
	return "unknown"
}

// TransportType is the transport protocol a candidate is reachable on.
type TransportType byte

// Supported transport types.
const (
	UDP TransportType = iota
	TCP
	TLS
	DTLS
	SCTP
	SSLTCP
)

var transportToStr = map[TransportType]string{
	UDP:    "udp",
	TCP:    "tcp",
	TLS:    "tls",
	DTLS:   "dtls",
	SCTP:   "sctp",
	SSLTCP: "ssltcp",
}

func (t TransportType) String() string {
	if s, ok := transportToStr[t]; ok {
		return s
	}
	return "unknown"
}

// TCPType is the role of a TCP candidate, RFC 6544 Section 4.5.
type TCPType byte

// Possible TCP candidate roles.
const (
	TCPNone TCPType = iota
	TCPActive
	TCPPassive
	TCPSO
)

var tcpTypeToStr = map[TCPType]string{
	TCPNone:    "",
	TCPActive:  "active",
	TCPPassive: "passive",
	TCPSO:      "so",
}

func (t TCPType) String() string {
	if s, ok := tcpTypeToStr[t]; ok {
		return s
	}
	return "unknown"
}
