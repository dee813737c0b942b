package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Role selects which side of the test a process plays.
type Role string

const (
	RoleTransmitter Role = "transmit"
	RoleReceiver    Role = "receive"
	RoleReplay      Role = "replay"
)

type Config struct {
	Role Role `mapstructure:"-"`

	Group       GroupConfig       `mapstructure:"group"`
	Test        TestConfig        `mapstructure:"test"`
	Transmitter TransmitterConfig `mapstructure:"transmitter"`
	Receiver    ReceiverConfig    `mapstructure:"receiver"`
	Replay      ReplayConfig      `mapstructure:"replay"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type GroupConfig struct {
	Address   string `mapstructure:"address"`
	Interface string `mapstructure:"interface"` // name or local address
	Port      int    `mapstructure:"port"`
	// Source, when set, joins the group source-specific (receivers only).
	Source string `mapstructure:"source"`
}

// TestConfig must match between the transmitter and its receivers.
type TestConfig struct {
	TotalCount  int `mapstructure:"totalcount"`
	MessageSize int `mapstructure:"messagesize"` // bytes per message, headers included
	PacketSize  int `mapstructure:"packetsize"`  // bytes per datagram, header included
}

type TransmitterConfig struct {
	Frequency float64 `mapstructure:"frequency"` // messages per second, 0 = unpaced
	Lossiness float64 `mapstructure:"lossiness"` // percent of packets withheld
	Seed      uint64  `mapstructure:"seed"`      // 0 = time based
	TTL       int     `mapstructure:"ttl"`
	Loopback  bool    `mapstructure:"loopback"`
}

type ReceiverConfig struct {
	ReceiveBuffer   int           `mapstructure:"receivebuffer"`
	ReportInterval  int           `mapstructure:"reportinterval"`
	InitialTimeout  time.Duration `mapstructure:"initial_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AllowDuplicates bool          `mapstructure:"allow_duplicates"`
	KernelFilter    bool          `mapstructure:"kernel_filter"`
	Capture         string        `mapstructure:"capture"`
}

type ReplayConfig struct {
	Input      string `mapstructure:"input"`
	Duplicates int    `mapstructure:"duplicates"` // extra copies of every datagram
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"address":          "group.address",
	"interface":        "group.interface",
	"port":             "group.port",
	"source":           "group.source",
	"totalcount":       "test.totalcount",
	"messagesize":      "test.messagesize",
	"packetsize":       "test.packetsize",
	"frequency":        "transmitter.frequency",
	"lossiness":        "transmitter.lossiness",
	"seed":             "transmitter.seed",
	"ttl":              "transmitter.ttl",
	"loopback":         "transmitter.loopback",
	"receivebuffer":    "receiver.receivebuffer",
	"reportinterval":   "receiver.reportinterval",
	"initial-timeout":  "receiver.initial_timeout",
	"idle-timeout":     "receiver.idle_timeout",
	"allow-duplicates": "receiver.allow_duplicates",
	"kernel-filter":    "receiver.kernel_filter",
	"capture":          "receiver.capture",
	"input":            "replay.input",
	"duplicates":       "replay.duplicates",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"log-output":       "logging.output",
	"metrics":          "metrics.enabled",
	"metrics-addr":     "metrics.addr",
	"metrics-path":     "metrics.path",
}

// Load builds the configuration for role from defaults, an optional YAML file,
// MCASTCHECK_* environment variables and the flags in fs, in rising priority.
func Load(role Role, fs *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MCASTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Role = role

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("group.port", 10350)

	v.SetDefault("test.totalcount", 1000)
	v.SetDefault("test.messagesize", 100)
	v.SetDefault("test.packetsize", 1300)

	v.SetDefault("transmitter.frequency", 50.0)
	v.SetDefault("transmitter.lossiness", 0.0)
	v.SetDefault("transmitter.seed", 0)
	v.SetDefault("transmitter.ttl", 64)
	v.SetDefault("transmitter.loopback", true)

	v.SetDefault("receiver.receivebuffer", 120000)
	v.SetDefault("receiver.reportinterval", 100)
	v.SetDefault("receiver.initial_timeout", "100s")
	v.SetDefault("receiver.idle_timeout", "10s")
	v.SetDefault("receiver.poll_interval", "300ms")
	v.SetDefault("receiver.allow_duplicates", false)
	v.SetDefault("receiver.kernel_filter", false)

	v.SetDefault("replay.duplicates", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

// PacketsPerMessage returns the packet count implied by the message and packet sizes.
func (t *TestConfig) PacketsPerMessage() int {
	if t.PacketSize <= 0 {
		return 0
	}
	return (t.MessageSize + t.PacketSize - 1) / t.PacketSize
}

// Interval returns the pause between two messages, 0 when unpaced.
func (t *TransmitterConfig) Interval() time.Duration {
	if t.Frequency <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / t.Frequency)
}
