package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/blockcast/mcastcheck"
	"github.com/blockcast/mcastcheck/capture"
	"github.com/blockcast/mcastcheck/internal/config"
	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/internal/logger"
	"github.com/blockcast/mcastcheck/metrics"
	"github.com/blockcast/mcastcheck/packetizer"
	"github.com/blockcast/mcastcheck/reassembler"
	"github.com/blockcast/mcastcheck/stats"
)

func startMetrics(ctx context.Context, cfg *config.Config, st *stats.Stats, log logger.Logger) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(st, string(cfg.Role)),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	_, err := metrics.Start(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg, log)
	return err
}

func transmit(ctx context.Context, cfg *config.Config, log logger.Logger, stdout io.Writer) error {
	ifi, err := mcastcheck.ResolveInterface(cfg.Group.Interface)
	if err != nil {
		return err
	}
	group := cfg.Group.GroupAddr()
	conn := &mcastcheck.MulticastConn{
		GroupAddr: group.Addr(),
		GroupPort: group.Port(),
		IFace:     ifi,
		TTL:       cfg.Transmitter.TTL,
		Loopback:  cfg.Transmitter.Loopback,
	}
	if err := conn.OpenTransmitter(); err != nil {
		return err
	}
	defer conn.Close()

	st := stats.New(cfg.Test.TotalCount, cfg.Test.PacketsPerMessage())
	if err := startMetrics(ctx, cfg, st, log); err != nil {
		return err
	}

	opts := []packetizer.Option{packetizer.WithLogger(log)}
	if cfg.Transmitter.Seed != 0 {
		opts = append(opts, packetizer.WithSeed(cfg.Transmitter.Seed))
	}
	p, err := packetizer.New(packetizer.Config{
		TotalCount:  cfg.Test.TotalCount,
		MessageSize: cfg.Test.MessageSize,
		PacketSize:  cfg.Test.PacketSize,
		Interval:    cfg.Transmitter.Interval(),
		Lossiness:   cfg.Transmitter.Lossiness,
	}, conn, st, opts...)
	if err != nil {
		return apperrors.WrapConfigError(err, "packetizer")
	}

	log.WithFields(map[string]interface{}{
		"group":     group.String(),
		"interface": ifi.Name,
		"ttl":       cfg.Transmitter.TTL,
	}).Info("Transmitting")
	runErr := p.Run(ctx)
	st.TransmitterReport(stdout)
	return runErr
}

func receive(ctx context.Context, cfg *config.Config, log logger.Logger, stdout io.Writer) error {
	ifi, err := mcastcheck.ResolveInterface(cfg.Group.Interface)
	if err != nil {
		return err
	}
	group := cfg.Group.GroupAddr()
	conn := &mcastcheck.MulticastConn{
		GroupAddr:     group.Addr(),
		GroupPort:     group.Port(),
		SrcAddr:       cfg.Group.SourceAddr(),
		IFace:         ifi,
		ReceiveBuffer: cfg.Receiver.ReceiveBuffer,
	}
	if cfg.Receiver.KernelFilter {
		if conn.Filter, err = mcastcheck.HeaderFilter(); err != nil {
			return apperrors.WrapConfigError(err, "assemble socket filter")
		}
	}
	if err := conn.OpenReceiver(); err != nil {
		return err
	}
	defer conn.Close()

	st, asm := newReassembler(cfg, cfg.Receiver.ReportInterval, log, stdout)
	if err := startMetrics(ctx, cfg, st, log); err != nil {
		return err
	}

	opts := []reassembler.ReceiverOption{reassembler.WithReceiverLogger(log)}
	if cfg.Receiver.Capture != "" {
		w, err := capture.Create(cfg.Receiver.Capture, group)
		if err != nil {
			return apperrors.WrapConfigError(err, "capture")
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.WithError(err).Warn("Failed to close capture")
			}
			log.WithField("datagrams", w.Count()).Info("Capture written")
		}()
		opts = append(opts, reassembler.WithRecorder(w))
	}

	log.WithFields(map[string]interface{}{
		"group":     group.String(),
		"interface": ifi.Name,
		"messages":  cfg.Test.TotalCount,
	}).Info("Waiting for packets")
	term, runErr := reassembler.NewReceiver(conn, asm, reassembler.ReceiverConfig{
		InitialTimeout: cfg.Receiver.InitialTimeout,
		IdleTimeout:    cfg.Receiver.IdleTimeout,
		PollInterval:   cfg.Receiver.PollInterval,
	}, opts...).Run(ctx)
	log.WithField("reason", term).Info("Receive finished")

	return conclude(st, asm, stats.Policy{AllowDuplicates: cfg.Receiver.AllowDuplicates}, stdout, runErr)
}

func replay(ctx context.Context, cfg *config.Config, log logger.Logger, stdout io.Writer) error {
	r, err := capture.Open(cfg.Replay.Input, cfg.Group.GroupAddr())
	if err != nil {
		return apperrors.WrapConfigError(err, "replay input")
	}
	defer r.Close()

	st, asm := newReassembler(cfg, cfg.Receiver.ReportInterval, log, stdout)
	n, runErr := capture.Replay(r, asm, cfg.Replay.Duplicates)
	log.WithFields(map[string]interface{}{
		"datagrams": n,
		"skipped":   r.Skipped(),
	}).Info("Replay finished")
	if runErr != nil {
		runErr = apperrors.WrapTransportError(runErr, "replay")
	}
	return conclude(st, asm, stats.Policy{AllowDuplicates: cfg.Receiver.AllowDuplicates}, stdout, runErr)
}

func newReassembler(cfg *config.Config, reportInterval int, log logger.Logger, stdout io.Writer) (*stats.Stats, *reassembler.Reassembler) {
	st := stats.New(cfg.Test.TotalCount, cfg.Test.PacketsPerMessage())
	asm := reassembler.New(reassembler.Config{
		TotalCount:        cfg.Test.TotalCount,
		PacketsPerMessage: cfg.Test.PacketsPerMessage(),
		ReportInterval:    reportInterval,
	}, st, log)
	asm.OnReport(func() { st.PeriodicReport(stdout) })
	return st, asm
}

// conclude classifies what never completed, prints the final report and
// turns a FAIL verdict into an error. A transport failure takes precedence.
func conclude(st *stats.Stats, asm *reassembler.Reassembler, policy stats.Policy, stdout io.Writer, runErr error) error {
	asm.Finish()
	verdict := st.FinalReport(stdout, policy)
	if runErr != nil {
		return runErr
	}
	if !verdict.Pass {
		return apperrors.New(apperrors.ErrorTypeVerdict, fmt.Sprint(verdict))
	}
	return nil
}
