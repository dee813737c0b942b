package mcastcheck

import (
	"net"
	"net/netip"

	apperrors "github.com/blockcast/mcastcheck/internal/errors"
)

// ResolveInterface accepts an interface name or an address assigned to one
// of the host's interfaces.
func ResolveInterface(nameOrAddr string) (*net.Interface, error) {
	if ifi, err := net.InterfaceByName(nameOrAddr); err == nil {
		return ifi, nil
	}
	addr, err := netip.ParseAddr(nameOrAddr)
	if err != nil {
		return nil, apperrors.NewConfigError("unknown interface %q", nameOrAddr)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, apperrors.WrapConfigError(err, "list interfaces")
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(ipnet.IP); ok && ip.Unmap() == addr.Unmap() {
				return &ifaces[i], nil
			}
		}
	}
	return nil, apperrors.NewConfigError("no interface has address %s", addr)
}
