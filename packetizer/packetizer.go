// Package packetizer is the transmitting side of a test: it cuts messages into
// packets, stamps them, withholds a random share and paces the stream.
package packetizer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/blockcast/mcastcheck/internal/clock"
	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/internal/logger"
	"github.com/blockcast/mcastcheck/stats"
	"github.com/blockcast/mcastcheck/wire"
)

// Sender puts one datagram on the substrate.
type Sender interface {
	Send(b []byte) error
}

type Config struct {
	TotalCount  int
	MessageSize int
	PacketSize  int
	// Interval between the scheduled start of two messages; 0 sends back to back.
	Interval time.Duration
	// Lossiness is the percent chance that any single packet is withheld.
	Lossiness float64
}

type Packetizer struct {
	cfg    Config
	sender Sender
	stats  *stats.Stats
	clock  clock.Clock
	rng    *rand.Rand
	log    logger.Logger

	packetCount int
	buf         []byte
	filler      []byte
}

type Option func(*Packetizer)

func WithClock(c clock.Clock) Option {
	return func(p *Packetizer) { p.clock = c }
}

// WithSeed makes loss injection reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Packetizer) { p.rng = rand.New(rand.NewPCG(seed, seed)) }
}

func WithLogger(log logger.Logger) Option {
	return func(p *Packetizer) { p.log = log }
}

func New(cfg Config, sender Sender, st *stats.Stats, opts ...Option) (*Packetizer, error) {
	n := wire.PacketCount(cfg.MessageSize, cfg.PacketSize)
	if n == 0 || n > wire.MaxPacketCount {
		return nil, fmt.Errorf("cannot cut %d byte messages into %d byte packets", cfg.MessageSize, cfg.PacketSize)
	}
	if cfg.PacketSize < wire.HeaderLen {
		return nil, fmt.Errorf("packet size %d smaller than header", cfg.PacketSize)
	}
	p := &Packetizer{
		cfg:         cfg,
		sender:      sender,
		stats:       st,
		clock:       clock.Real(),
		log:         logger.NewNullLogger(),
		packetCount: n,
		buf:         make([]byte, cfg.PacketSize),
		filler:      make([]byte, cfg.PacketSize-wire.HeaderLen),
	}
	for i := range p.filler {
		p.filler[i] = byte(i)
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		seed := uint64(time.Now().UnixNano())
		p.rng = rand.New(rand.NewPCG(seed, seed))
		p.log.WithField("seed", seed).Debug("Loss injection seeded from clock")
	}
	return p, nil
}

// PacketCount returns the number of packets per message.
func (p *Packetizer) PacketCount() int {
	return p.packetCount
}

// withhold runs the per-packet Bernoulli trial of the loss injection.
func (p *Packetizer) withhold() bool {
	if p.cfg.Lossiness <= 0 {
		return false
	}
	return p.rng.Float64()*100 < p.cfg.Lossiness
}

// EmitMessage sends every packet of message id that survives loss injection,
// in index order. A send failure is returned as a transport error.
func (p *Packetizer) EmitMessage(id uint32) error {
	for i := 0; i < p.packetCount; i++ {
		if p.withhold() {
			p.stats.RecordDropped()
			continue
		}
		size := wire.DatagramSize(p.cfg.MessageSize, p.cfg.PacketSize, i)
		pkt := wire.Packet{
			Header: wire.Header{
				MessageID:     id,
				PacketIndex:   uint16(i),
				PacketCount:   uint16(p.packetCount),
				SendTimestamp: wire.Timestamp(p.clock.Now()),
			},
			Payload: p.filler[:size-wire.HeaderLen],
		}
		n, err := pkt.MarshalTo(p.buf)
		if err != nil {
			return fmt.Errorf("encode message %d packet %d: %w", id, i, err)
		}
		if err := p.sender.Send(p.buf[:n]); err != nil {
			return apperrors.WrapTransportError(err, fmt.Sprintf("send message %d packet %d", id, i))
		}
		p.stats.RecordSent(n)
	}
	p.stats.RecordMessageSent()
	return nil
}

// Run emits messages 0 .. TotalCount-1. Message i is due at start + i*Interval,
// so a late send does not push back the rest of the schedule.
func (p *Packetizer) Run(ctx context.Context) error {
	start := p.clock.Now()
	step := p.cfg.TotalCount / 10
	if step == 0 {
		step = 1
	}
	p.log.WithFields(map[string]interface{}{
		"messages":            p.cfg.TotalCount,
		"packets_per_message": p.packetCount,
		"interval":            p.cfg.Interval,
		"lossiness":           p.cfg.Lossiness,
	}).Info("Sending messages")

	for i := 0; i < p.cfg.TotalCount; i++ {
		if p.cfg.Interval > 0 && i > 0 {
			due := start.Add(time.Duration(i) * p.cfg.Interval)
			if err := p.clock.SleepUntil(ctx, due); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.EmitMessage(uint32(i)); err != nil {
			return err
		}
		if (i+1)%step == 0 || i+1 == p.cfg.TotalCount {
			p.log.WithField("progress", fmt.Sprintf("%d%%", (i+1)*100/p.cfg.TotalCount)).Debug("Transmit progress")
		}
	}
	return nil
}
