// Package ice implements the core of an Interactive Connectivity
// Establishment (RFC 8445/5245) agent: candidate and candidate-pair
// models, check-list construction and pruning, and the connectivity
// check state machine. STUN transaction handling, candidate harvesting
// and network transport are external collaborators, consumed through
// the Transport, Harvester and Socket interfaces in this package.
package ice

import (
	"fmt"
	"net"

	"github.com/gortc/iceagent/candidate"
)

// Addr is a transport address: an IP, a port and a transport protocol.
//
// Equality of two Addr values includes the transport, so a UDP and a TCP
// candidate bound to the same IP:port are distinct addresses.
type Addr struct {
	IP    net.IP
	Port  int
	Proto candidate.TransportType
}

// Equal reports whether a and b designate the same transport address.
func (a Addr) Equal(b Addr) bool {
	if a.Proto != b.Proto {
		return false
	}
	if a.Port != b.Port {
		return false
	}
	return a.IP.Equal(b.IP)
}

// IsZero reports whether a carries no address information.
func (a Addr) IsZero() bool {
	return len(a.IP) == 0 && a.Port == 0
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d/%s", a.IP, a.Port, a.Proto)
}

func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}

// CanReach reports whether address b can be reached from address a, per
// RFC 8445 Section 6.1.2.2: equal transport, matching address family,
// and (unless allowLinkToGlobal is set) no pairing of a link-local
// address with a global one.
func (a Addr) CanReach(b Addr, allowLinkToGlobal bool) bool {
	if a.Proto != b.Proto {
		return false
	}
	if !sameFamily(a.IP, b.IP) {
		return false
	}
	if allowLinkToGlobal {
		return true
	}
	if a.IP.IsLinkLocalUnicast() != b.IP.IsLinkLocalUnicast() {
		return false
	}
	return true
}
