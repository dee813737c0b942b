// Package mcastcheck carries test traffic over an IPv4 multicast group.
package mcastcheck

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/bpf"
	"golang.org/x/net/ipv4"

	apperrors "github.com/blockcast/mcastcheck/internal/errors"
)

var _ net.PacketConn = (*MulticastConn)(nil)

// MulticastConn is one end of a multicast test: OpenReceiver joins the group,
// OpenTransmitter prepares a socket that sends to it.
type MulticastConn struct {
	GroupAddr netip.Addr
	GroupPort uint16
	// SrcAddr, when valid, restricts the receiver to a source-specific group.
	SrcAddr netip.Addr
	IFace   *net.Interface
	TTL     int
	// Loopback delivers the transmitter's packets to receivers on the same host.
	Loopback      bool
	ReceiveBuffer int
	Filter        []bpf.RawInstruction

	conn4 *ipv4.PacketConn
	dst   *net.UDPAddr
}

func (mc *MulticastConn) groupUDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(mc.GroupAddr, mc.GroupPort))
}

// OpenReceiver binds to the group and port on IFace and joins the group.
func (mc *MulticastConn) OpenReceiver() error {
	dstAddr := mc.groupUDPAddr()
	conn, err := ListenMulticastUDP4(mc.IFace, dstAddr, mc.Filter, mc.ReceiveBuffer)
	if err != nil {
		return apperrors.WrapTransportError(err, fmt.Sprintf("listen on %s", dstAddr))
	}
	mc.conn4 = ipv4.NewPacketConn(conn)
	mc.dst = dstAddr

	if mc.SrcAddr.IsValid() && !mc.SrcAddr.IsUnspecified() {
		srcAddr := &net.IPAddr{IP: mc.SrcAddr.AsSlice()}
		if err := mc.conn4.JoinSourceSpecificGroup(mc.IFace, dstAddr, srcAddr); err != nil {
			mc.conn4.Close()
			return apperrors.WrapTransportError(err, "join source specific group")
		}
	} else if err := mc.conn4.JoinGroup(mc.IFace, dstAddr); err != nil {
		mc.conn4.Close()
		return apperrors.WrapTransportError(err, "join group")
	}
	return nil
}

// OpenTransmitter creates an unbound socket whose multicast traffic leaves
// through IFace.
func (mc *MulticastConn) OpenTransmitter() error {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return apperrors.WrapTransportError(err, "create socket")
	}
	mc.conn4 = ipv4.NewPacketConn(conn)
	mc.dst = mc.groupUDPAddr()

	if err := mc.setupTransmitter(); err != nil {
		mc.conn4.Close()
		return apperrors.WrapTransportError(err, "configure socket")
	}
	return nil
}

func (mc *MulticastConn) setupTransmitter() error {
	if err := mc.conn4.SetMulticastInterface(mc.IFace); err != nil {
		return fmt.Errorf("set multicast interface %s: %w", mc.IFace.Name, err)
	}
	if err := mc.conn4.SetMulticastTTL(mc.TTL); err != nil {
		return fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := mc.conn4.SetMulticastLoopback(mc.Loopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}
	return nil
}

// Send writes one datagram to the group.
func (mc *MulticastConn) Send(b []byte) error {
	_, err := mc.conn4.WriteTo(b, nil, mc.dst)
	return err
}

// Read reads one datagram, discarding its source.
func (mc *MulticastConn) Read(b []byte) (int, error) {
	n, _, _, err := mc.conn4.ReadFrom(b)
	return n, err
}

func (mc *MulticastConn) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	n, _, addr, err = mc.conn4.ReadFrom(p)
	return n, addr, err
}

func (mc *MulticastConn) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	return mc.conn4.WriteTo(p, nil, addr)
}

func (mc *MulticastConn) Close() error {
	if mc.conn4 == nil {
		return nil
	}
	if mc.IFace != nil && mc.dst != nil {
		// leaving fails on transmitter sockets that never joined; nothing to undo
		_ = mc.conn4.LeaveGroup(mc.IFace, mc.dst)
	}
	return mc.conn4.Close()
}

func (mc *MulticastConn) LocalAddr() net.Addr {
	return mc.conn4.LocalAddr()
}

func (mc *MulticastConn) SetDeadline(t time.Time) error {
	return mc.conn4.SetDeadline(t)
}

func (mc *MulticastConn) SetReadDeadline(t time.Time) error {
	return mc.conn4.SetReadDeadline(t)
}

func (mc *MulticastConn) SetWriteDeadline(t time.Time) error {
	return mc.conn4.SetWriteDeadline(t)
}
