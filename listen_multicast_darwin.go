package mcastcheck

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// ListenMulticastUDP4 binds a UDP socket to the group address itself. Darwin
// has no socket filters, so f is ignored and short datagrams are rejected in
// user space.
func ListenMulticastUDP4(ifi *net.Interface, gaddr *net.UDPAddr, f []bpf.RawInstruction, rcvbuf int) (net.PacketConn, error) {
	if gaddr == nil || gaddr.IP.To4() == nil {
		return nil, errors.New("invalid ipv4 address")
	}

	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("could not get socket: %w", err)
	}
	if err := setupSocket(sock, ifi, rcvbuf); err != nil {
		_ = unix.Close(sock)
		return nil, err
	}

	lsa := unix.SockaddrInet4{Port: gaddr.Port}
	copy(lsa.Addr[:], gaddr.IP.To4())
	if err := unix.Bind(sock, &lsa); err != nil {
		_ = unix.Close(sock)
		return nil, fmt.Errorf("could not bind socket: %w", err)
	}

	file := os.NewFile(uintptr(sock), "")
	conn, err := net.FilePacketConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("could not wrap filepacketconn: %w", err)
	}
	return conn, nil
}

func setupSocket(sock int, ifi *net.Interface, rcvbuf int) error {
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("could not set socket reuseaddr: %w", err)
	}
	if rcvbuf > 0 {
		if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvbuf); err != nil {
			return fmt.Errorf("could not set receive buffer: %w", err)
		}
	}
	if ifi != nil {
		if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_BOUND_IF, ifi.Index); err != nil {
			return fmt.Errorf("could not bind to interface: %w", err)
		}
	}
	return nil
}
