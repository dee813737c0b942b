// Command mcastcheck checks that a network carries multicast traffic: one
// host transmits numbered messages to a group and others receive and judge
// them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/blockcast/mcastcheck/internal/config"
	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/internal/logger"
)

const usage = `usage: mcastcheck <transmit|receive|replay> [flags]

  transmit   send numbered messages to a multicast group
  receive    join a group, reassemble messages and report PASS or FAIL
  replay     run the receiver's checks over a pcap capture

Run "mcastcheck <role> --help" for the role's flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one role and returns the process exit code. Reports go to
// stdout; usage and fatal errors to stderr.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return apperrors.ExitConfig
	}
	role := config.Role(args[0])
	switch role {
	case config.RoleTransmitter, config.RoleReceiver, config.RoleReplay:
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return apperrors.ExitOK
	default:
		fmt.Fprintf(stderr, "unknown role %q\n\n%s", args[0], usage)
		return apperrors.ExitConfig
	}

	fs := newFlagSet(role, stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return apperrors.ExitOK
		}
		return apperrors.ExitConfig
	}

	cfg, err := config.Load(role, fs, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "mcastcheck: %v\n", err)
		return apperrors.ExitConfig
	}

	lg, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "mcastcheck: %v\n", err)
		return apperrors.ExitConfig
	}
	log := logger.WithComponent(lg, string(role)).WithField("run_id", uuid.New().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	switch role {
	case config.RoleTransmitter:
		err = transmit(ctx, cfg, log, stdout)
	case config.RoleReceiver:
		err = receive(ctx, cfg, log, stdout)
	case config.RoleReplay:
		err = replay(ctx, cfg, log, stdout)
	}
	code := apperrors.ExitCode(err)
	if err != nil && code != apperrors.ExitFail && code != apperrors.ExitInterrupted {
		log.WithError(err).Error("Test aborted")
	}
	return code
}

func newFlagSet(role config.Role, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(string(role), pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	fs.String("address", "", "multicast group address (224.0.0.0-239.255.255.255)")
	fs.Int("port", 10350, "UDP port")
	if role != config.RoleReplay {
		fs.String("interface", "", "interface name or local address to use")
	}
	fs.Int("totalcount", 1000, "number of messages in the test")
	fs.Int("messagesize", 100, "bytes per message, headers included")
	fs.Int("packetsize", 1300, "bytes per datagram, header included")

	switch role {
	case config.RoleTransmitter:
		fs.Float64("frequency", 50, "messages per second, 0 sends as fast as possible")
		fs.Float64("lossiness", 0, "percentage of packets to withhold")
		fs.Uint64("seed", 0, "loss injection seed, 0 seeds from the clock")
		fs.Int("ttl", 64, "multicast TTL")
		fs.Bool("loopback", true, "deliver packets to receivers on this host")
	case config.RoleReceiver:
		fs.String("source", "", "join source-specific for this sender address")
		fs.Int("receivebuffer", 120000, "socket receive buffer in bytes")
		fs.Int("reportinterval", 100, "messages between periodic reports, 0 disables")
		fs.Duration("initial-timeout", 100*time.Second, "wait for the first packet")
		fs.Duration("idle-timeout", 10*time.Second, "wait between packets once traffic started")
		fs.Bool("allow-duplicates", false, "do not fail the test on duplicate packets")
		fs.Bool("kernel-filter", false, "drop datagrams shorter than a header in the kernel")
		fs.String("capture", "", "record received datagrams to this pcap file")
	case config.RoleReplay:
		fs.String("input", "", "pcap file to replay")
		fs.Int("duplicates", 0, "extra copies of every datagram to inject")
		fs.Int("reportinterval", 100, "messages between periodic reports, 0 disables")
		fs.Bool("allow-duplicates", false, "do not fail the test on duplicate packets")
	}

	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-format", "text", "text or json")
	fs.String("log-output", "stderr", "stdout, stderr or a file path")
	if role != config.RoleReplay {
		fs.Bool("metrics", false, "serve Prometheus metrics")
		fs.String("metrics-addr", ":9090", "metrics listen address")
		fs.String("metrics-path", "/metrics", "metrics URL path")
	}
	return fs
}
