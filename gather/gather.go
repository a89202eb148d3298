// Package gather implements ice.Harvester for host candidates: it
// enumerates local network interfaces and binds one UDP socket per
// usable address, RFC 8445 Section 5.1.1.1.
package gather

import (
	"context"
	"net"

	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
	"github.com/gortc/iceagent/udpsocket"
)

// HostHarvester binds a socket per local interface address and wraps it
// in a host LocalCandidate.
type HostHarvester struct {
	log               *zap.Logger
	allowLinkToGlobal bool
	reusePort         bool
}

// Options configures a HostHarvester.
type Options struct {
	Log               *zap.Logger
	AllowLinkToGlobal bool
	ReusePort         bool
}

// New returns a HostHarvester.
func New(o Options) *HostHarvester {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &HostHarvester{log: log, allowLinkToGlobal: o.AllowLinkToGlobal, reusePort: o.ReusePort}
}

// Gather implements ice.Harvester.
func (h *HostHarvester) Gather(ctx context.Context, componentID int, proto candidate.TransportType) ([]*ice.LocalCandidate, error) {
	var out []*ice.LocalCandidate
	for _, ip := range localAddrs(h.allowLinkToGlobal) {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		sock, err := udpsocket.Listen(udpsocket.Options{
			Network:   networkFor(ip),
			Addr:      net.JoinHostPort(ip.String(), "0"),
			ReusePort: h.reusePort,
		})
		if err != nil {
			h.log.Debug("failed to bind host candidate", zap.String("ip", ip.String()), zap.Error(err))
			continue
		}
		local := sock.LocalAddr()
		local.Proto = proto
		c := ice.Candidate{
			Addr:        local,
			Type:        candidate.Host,
			ComponentID: componentID,
		}
		lc := ice.NewLocalCandidate(c, "")
		lc.SetSocket(sock)
		out = append(out, lc)
	}
	return out, nil
}

func networkFor(ip net.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

// localAddrs enumerates usable local IP addresses per RFC 8445 Section
// 5.1.1.1: skip loopback/down interfaces, skip IPv6 site-local and
// link-local addresses unless allowLinkToGlobal permits pairing them
// with global candidates.
//
// Grounded on pion-webrtc's pkg/ice getLocalInterfaces helper.
func localAddrs(allowLinkToGlobal bool) []net.IP {
	var out []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				out = append(out, v4)
				continue
			}
			if len(ip) != net.IPv6len {
				continue
			}
			if !allowLinkToGlobal {
				if ip[0] == 0xfe && ip[1]&0xc0 == 0xc0 {
					continue
				}
				if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
					continue
				}
			}
			out = append(out, ip)
		}
	}
	return out
}
