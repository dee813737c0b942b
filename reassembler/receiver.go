package reassembler

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/blockcast/mcastcheck/internal/clock"
	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/internal/logger"
	"github.com/blockcast/mcastcheck/wire"
)

// PacketSource is the receive half of the substrate. Read must return a
// timeout net.Error once the read deadline passes.
type PacketSource interface {
	SetReadDeadline(t time.Time) error
	Read(b []byte) (int, error)
}

// Recorder is handed every datagram read, before classification.
type Recorder interface {
	WriteDatagram(b []byte, ts time.Time) error
}

// Termination tells why a receive loop ended.
type Termination uint8

const (
	AllClassified Termination = iota
	IdleTimeout
	Cancelled
	Failed
)

func (t Termination) String() string {
	switch t {
	case AllClassified:
		return "all messages complete"
	case IdleTimeout:
		return "idle timeout"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "transport failure"
	}
	return "unknown"
}

type ReceiverConfig struct {
	// InitialTimeout bounds the wait for the first valid packet.
	InitialTimeout time.Duration
	// IdleTimeout bounds the gap between valid packets once traffic started.
	IdleTimeout time.Duration
	// PollInterval caps a single blocking read so cancellation is noticed.
	PollInterval time.Duration
}

type Receiver struct {
	src      PacketSource
	asm      *Reassembler
	cfg      ReceiverConfig
	clock    clock.Clock
	log      logger.Logger
	recorder Recorder
}

type ReceiverOption func(*Receiver)

func WithReceiverClock(c clock.Clock) ReceiverOption {
	return func(r *Receiver) { r.clock = c }
}

func WithReceiverLogger(log logger.Logger) ReceiverOption {
	return func(r *Receiver) { r.log = log }
}

func WithRecorder(rec Recorder) ReceiverOption {
	return func(r *Receiver) { r.recorder = rec }
}

func NewReceiver(src PacketSource, asm *Reassembler, cfg ReceiverConfig, opts ...ReceiverOption) *Receiver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Millisecond
	}
	r := &Receiver{
		src:   src,
		asm:   asm,
		cfg:   cfg,
		clock: clock.Real(),
		log:   logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads until every message is complete, no valid packet arrived for the
// applicable timeout, or ctx is done. Only transport failures are errors; the
// caller still owns the statistics gathered so far.
func (r *Receiver) Run(ctx context.Context) (Termination, error) {
	buf := make([]byte, wire.MaxDatagramLen+1)
	timeout := r.cfg.InitialTimeout
	lastActivity := r.clock.Now()

	for !r.asm.Done() {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		now := r.clock.Now()
		remaining := timeout - now.Sub(lastActivity)
		if remaining <= 0 {
			r.log.WithField("timeout", timeout).Warn("Timed out whilst waiting for packets")
			return IdleTimeout, nil
		}
		if err := r.src.SetReadDeadline(now.Add(min(remaining, r.cfg.PollInterval))); err != nil {
			return Failed, apperrors.WrapTransportError(err, "set read deadline")
		}
		n, err := r.src.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return Cancelled, nil
			}
			return Failed, apperrors.WrapTransportError(err, "receive")
		}
		arrival := r.clock.Now()
		if r.recorder != nil {
			if err := r.recorder.WriteDatagram(buf[:n], arrival); err != nil {
				r.log.WithError(err).Warn("Capture failed, recording disabled")
				r.recorder = nil
			}
		}
		switch r.asm.Handle(buf[:n], arrival) {
		case Malformed, OutOfRange, Late:
		default:
			if timeout != r.cfg.IdleTimeout {
				r.log.Debug("First packet received")
			}
			lastActivity = arrival
			timeout = r.cfg.IdleTimeout
		}
	}
	return AllClassified, nil
}
