package config

import (
	"fmt"
	"net/netip"

	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/wire"
)

// Validate checks the configuration for the selected role. Every failure is a
// configuration error so the caller can exit before any socket is opened.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleTransmitter, RoleReceiver, RoleReplay:
	default:
		return apperrors.NewConfigError("unknown role %q", c.Role)
	}

	if err := c.Group.Validate(c.Role); err != nil {
		return apperrors.WrapConfigError(err, "group config")
	}
	if err := c.Test.Validate(); err != nil {
		return apperrors.WrapConfigError(err, "test config")
	}
	switch c.Role {
	case RoleTransmitter:
		if err := c.Transmitter.Validate(); err != nil {
			return apperrors.WrapConfigError(err, "transmitter config")
		}
	case RoleReceiver:
		if err := c.Receiver.Validate(); err != nil {
			return apperrors.WrapConfigError(err, "receiver config")
		}
	case RoleReplay:
		if err := c.Receiver.Validate(); err != nil {
			return apperrors.WrapConfigError(err, "receiver config")
		}
		if err := c.Replay.Validate(); err != nil {
			return apperrors.WrapConfigError(err, "replay config")
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return apperrors.WrapConfigError(err, "logging config")
	}
	if err := c.Metrics.Validate(); err != nil {
		return apperrors.WrapConfigError(err, "metrics config")
	}
	return nil
}

// GroupAddr returns the parsed multicast group. Validate must have passed.
func (g *GroupConfig) GroupAddr() netip.AddrPort {
	addr, _ := netip.ParseAddr(g.Address)
	return netip.AddrPortFrom(addr, uint16(g.Port))
}

func (g *GroupConfig) Validate(role Role) error {
	if g.Port < 1 || g.Port > 65535 {
		return fmt.Errorf("invalid port: %d", g.Port)
	}
	// a replay may run without knowing the group; it then accepts every UDP datagram
	if role == RoleReplay && g.Address == "" {
		return nil
	}
	if g.Address == "" {
		return fmt.Errorf("address is required")
	}
	addr, err := netip.ParseAddr(g.Address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", g.Address, err)
	}
	if !addr.Is4() || !addr.IsMulticast() {
		return fmt.Errorf("address %s is not in 224.0.0.0-239.255.255.255", addr)
	}
	if role != RoleReplay && g.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if g.Source != "" {
		src, err := netip.ParseAddr(g.Source)
		if err != nil {
			return fmt.Errorf("invalid source %q: %w", g.Source, err)
		}
		if !src.Is4() || src.IsMulticast() || src.IsUnspecified() {
			return fmt.Errorf("source %s is not an ipv4 unicast address", src)
		}
	}
	return nil
}

// SourceAddr returns the source-specific sender, invalid when unset.
func (g *GroupConfig) SourceAddr() netip.Addr {
	addr, _ := netip.ParseAddr(g.Source)
	return addr
}

func (t *TestConfig) Validate() error {
	if t.TotalCount <= 0 {
		return fmt.Errorf("totalcount must be positive")
	}
	if t.PacketSize < wire.HeaderLen || t.PacketSize > wire.MaxDatagramLen {
		return fmt.Errorf("packetsize must be between %d and %d: %d", wire.HeaderLen, wire.MaxDatagramLen, t.PacketSize)
	}
	if t.MessageSize < wire.HeaderLen {
		return fmt.Errorf("messagesize must be at least %d: %d", wire.HeaderLen, t.MessageSize)
	}
	if n := t.PacketsPerMessage(); n > wire.MaxPacketCount {
		return fmt.Errorf("message of %d bytes needs %d packets, more than %d", t.MessageSize, n, wire.MaxPacketCount)
	}
	if uint64(t.TotalCount) > uint64(^uint32(0))+1 {
		return fmt.Errorf("totalcount too large: %d", t.TotalCount)
	}
	return nil
}

func (t *TransmitterConfig) Validate() error {
	if t.Frequency < 0 {
		return fmt.Errorf("frequency must not be negative")
	}
	if t.Lossiness < 0 || t.Lossiness > 100 {
		return fmt.Errorf("lossiness must be between 0 and 100: %v", t.Lossiness)
	}
	if t.TTL < 0 || t.TTL > 255 {
		return fmt.Errorf("invalid ttl: %d", t.TTL)
	}
	return nil
}

func (r *ReceiverConfig) Validate() error {
	if r.ReceiveBuffer < 0 {
		return fmt.Errorf("receivebuffer must not be negative")
	}
	if r.ReportInterval <= 0 {
		return fmt.Errorf("reportinterval must be positive")
	}
	if r.IdleTimeout <= 0 || r.InitialTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

func (r *ReplayConfig) Validate() error {
	if r.Input == "" {
		return fmt.Errorf("input capture file is required")
	}
	if r.Duplicates < 0 {
		return fmt.Errorf("duplicates must not be negative")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}
	if l.Output == "" {
		return fmt.Errorf("log output is required")
	}
	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Addr == "" {
		return fmt.Errorf("metrics addr is required")
	}
	if m.Path == "" || m.Path[0] != '/' {
		return fmt.Errorf("metrics path must start with /")
	}
	return nil
}
