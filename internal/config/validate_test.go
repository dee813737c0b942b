package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/blockcast/mcastcheck/internal/errors"
)

func validConfig(role Role) *Config {
	return &Config{
		Role:  role,
		Group: GroupConfig{Address: "239.0.0.1", Interface: "eth0", Port: 10350},
		Test:  TestConfig{TotalCount: 10, MessageSize: 450, PacketSize: 150},
		Transmitter: TransmitterConfig{
			Frequency: 50,
			TTL:       64,
		},
		Receiver: ReceiverConfig{
			ReceiveBuffer:  120000,
			ReportInterval: 100,
			InitialTimeout: 100 * time.Second,
			IdleTimeout:    10 * time.Second,
			PollInterval:   300 * time.Millisecond,
		},
		Replay:  ReplayConfig{Input: "capture.pcap"},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
		Metrics: MetricsConfig{Addr: ":9090", Path: "/metrics"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		modify func(*Config)
		errMsg string
	}{
		{name: "valid transmitter", role: RoleTransmitter, modify: func(c *Config) {}},
		{name: "valid receiver", role: RoleReceiver, modify: func(c *Config) {}},
		{name: "valid replay without group", role: RoleReplay, modify: func(c *Config) {
			c.Group.Address = ""
			c.Group.Interface = ""
		}},
		{name: "unknown role", role: Role("relay"), modify: func(c *Config) {}, errMsg: "unknown role"},
		{name: "unicast address", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Address = "192.168.2.8"
		}, errMsg: "not in 224.0.0.0-239.255.255.255"},
		{name: "garbage address", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Address = "239.0.0"
		}, errMsg: "invalid address"},
		{name: "ipv6 multicast", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Address = "ff02::1"
		}, errMsg: "not in 224.0.0.0-239.255.255.255"},
		{name: "missing interface", role: RoleTransmitter, modify: func(c *Config) {
			c.Group.Interface = ""
		}, errMsg: "interface is required"},
		{name: "source specific", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Source = "192.168.2.8"
		}},
		{name: "multicast source", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Source = "239.0.0.2"
		}, errMsg: "not an ipv4 unicast address"},
		{name: "bad port", role: RoleReceiver, modify: func(c *Config) {
			c.Group.Port = 70000
		}, errMsg: "invalid port"},
		{name: "packet smaller than header", role: RoleTransmitter, modify: func(c *Config) {
			c.Test.PacketSize = 10
		}, errMsg: "packetsize must be between"},
		{name: "message smaller than header", role: RoleTransmitter, modify: func(c *Config) {
			c.Test.MessageSize = 5
		}, errMsg: "messagesize must be at least"},
		{name: "too many packets", role: RoleTransmitter, modify: func(c *Config) {
			c.Test.PacketSize = 20
			c.Test.MessageSize = 20 * 70000
		}, errMsg: "needs 70000 packets"},
		{name: "zero totalcount", role: RoleReceiver, modify: func(c *Config) {
			c.Test.TotalCount = 0
		}, errMsg: "totalcount must be positive"},
		{name: "lossiness above 100", role: RoleTransmitter, modify: func(c *Config) {
			c.Transmitter.Lossiness = 101
		}, errMsg: "lossiness must be between"},
		{name: "negative frequency", role: RoleTransmitter, modify: func(c *Config) {
			c.Transmitter.Frequency = -1
		}, errMsg: "frequency must not be negative"},
		{name: "zero report interval", role: RoleReceiver, modify: func(c *Config) {
			c.Receiver.ReportInterval = 0
		}, errMsg: "reportinterval must be positive"},
		{name: "replay without input", role: RoleReplay, modify: func(c *Config) {
			c.Replay.Input = ""
		}, errMsg: "input capture file is required"},
		{name: "bad log level", role: RoleReceiver, modify: func(c *Config) {
			c.Logging.Level = "loud"
		}, errMsg: "invalid log level"},
		{name: "metrics path", role: RoleReceiver, modify: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, errMsg: "metrics path must start with /"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(tt.role)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfig))
			}
		})
	}
}
