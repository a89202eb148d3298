// Package udpsocket implements ice.Socket over net.PacketConn, optionally
// binding with SO_REUSEPORT so multiple host candidates can share a port
// range the same way a relay listener shares a port across allocations.
package udpsocket

import (
	"net"
	"time"

	"github.com/libp2p/go-reuseport"
	"github.com/pkg/errors"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/candidate"
)

// Options configures Listen.
type Options struct {
	Network   string // "udp4" or "udp6", defaults to "udp4"
	Addr      string // host:port to bind, port 0 picks an ephemeral port
	ReusePort bool
}

// Socket is an ice.Socket backed by a net.PacketConn.
type Socket struct {
	conn net.PacketConn
	buf  []byte
}

// Listen opens a UDP socket per Options, grounded on
// internal/server/server.go's listener setup: prefer reuseport.ListenPacket
// when available and requested, otherwise fall back to net.ListenPacket.
func Listen(o Options) (*Socket, error) {
	network := o.Network
	if network == "" {
		network = "udp4"
	}
	var (
		conn net.PacketConn
		err  error
	)
	if o.ReusePort && reuseport.Available() {
		conn, err = reuseport.ListenPacket(network, o.Addr)
	} else {
		conn, err = net.ListenPacket(network, o.Addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	return &Socket{conn: conn, buf: make([]byte, 1600)}, nil
}

// Send implements ice.Socket.
func (s *Socket) Send(b []byte, dst ice.Addr) error {
	_, err := s.conn.WriteTo(b, &net.UDPAddr{IP: dst.IP, Port: dst.Port})
	return errors.Wrap(err, "write")
}

// SetReadDeadline implements ice.Socket.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Recv implements ice.Socket.
func (s *Socket) Recv() ([]byte, ice.Addr, error) {
	n, addr, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		return nil, ice.Addr{}, errors.Wrap(err, "read")
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, ice.Addr{}, errors.Errorf("unexpected addr type %T", addr)
	}
	return out, ice.Addr{IP: udpAddr.IP, Port: udpAddr.Port, Proto: candidate.UDP}, nil
}

// LocalAddr implements ice.Socket.
func (s *Socket) LocalAddr() ice.Addr {
	udpAddr, ok := s.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ice.Addr{}
	}
	return ice.Addr{IP: udpAddr.IP, Port: udpAddr.Port, Proto: candidate.UDP}
}

// Close implements ice.Socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
