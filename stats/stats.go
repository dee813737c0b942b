// Package stats accumulates the counters and latency samples of one test run
// and renders the periodic and final reports.
package stats

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/blockcast/mcastcheck/internal/clock"
)

// Stats is the single statistics record of a role. Counters may be read from
// another goroutine while the send or receive loop updates them.
type Stats struct {
	messagesExpected int64
	packetsExpected  int64
	started          time.Time
	clock            clock.Clock

	// receiver
	messagesComplete  atomic.Int64
	messagesLost      atomic.Int64
	packetsReceived   atomic.Int64
	packetsDuplicate  atomic.Int64
	packetsMalformed  atomic.Int64
	packetsOutOfOrder atomic.Int64

	// transmitter
	messagesSent   atomic.Int64
	packetsSent    atomic.Int64
	packetsDropped atomic.Int64
	bytesSent      atomic.Int64

	mu             sync.Mutex
	latency        Accumulator
	samples        []int64
	window         Accumulator
	windowSamples  []int64
	windowComplete int64
}

type Option func(*Stats)

// WithClock sets the clock that times the run.
func WithClock(c clock.Clock) Option {
	return func(s *Stats) { s.clock = c }
}

// New creates the statistics for a run of totalCount messages of
// packetsPerMessage packets each. The run starts now.
func New(totalCount, packetsPerMessage int, opts ...Option) *Stats {
	s := &Stats{
		messagesExpected: int64(totalCount),
		packetsExpected:  int64(totalCount) * int64(packetsPerMessage),
		clock:            clock.Real(),
		samples:          make([]int64, 0, min(totalCount, 1<<16)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.clock.Now()
	return s
}

func (s *Stats) RecordDuplicate() {
	s.packetsDuplicate.Inc()
}

// RecordComplete counts a completed message and folds its representative
// latency, in microseconds, into the accumulators.
func (s *Stats) RecordComplete(latencyMicros int64) {
	s.messagesComplete.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency.Add(latencyMicros)
	s.window.Add(latencyMicros)
	s.windowComplete++
	if int64(len(s.samples)) < s.messagesExpected {
		s.samples = append(s.samples, latencyMicros)
	}
	s.windowSamples = append(s.windowSamples, latencyMicros)
}

func (s *Stats) RecordLost() {
	s.messagesLost.Inc()
}

// RecordPacket counts a well formed, in range packet, new or duplicate.
func (s *Stats) RecordPacket() {
	s.packetsReceived.Inc()
}

func (s *Stats) RecordMalformed() {
	s.packetsMalformed.Inc()
}

func (s *Stats) RecordOutOfOrder() {
	s.packetsOutOfOrder.Inc()
}

// RecordSent counts one datagram of n bytes handed to the transport.
func (s *Stats) RecordSent(n int) {
	s.packetsSent.Inc()
	s.bytesSent.Add(int64(n))
}

// RecordDropped counts a packet withheld by loss injection.
func (s *Stats) RecordDropped() {
	s.packetsDropped.Inc()
}

// RecordMessageSent counts a message whose packets were all attempted.
func (s *Stats) RecordMessageSent() {
	s.messagesSent.Inc()
}

// Classified returns the number of messages known complete or lost.
func (s *Stats) Classified() int64 {
	return s.messagesComplete.Load() + s.messagesLost.Load()
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	MessagesExpected  int64
	MessagesComplete  int64
	MessagesLost      int64
	PacketsExpected   int64
	PacketsReceived   int64
	PacketsDuplicate  int64
	PacketsMalformed  int64
	PacketsOutOfOrder int64

	MessagesSent   int64
	PacketsSent    int64
	PacketsDropped int64
	BytesSent      int64

	Latency Accumulator
	Elapsed time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	lat := s.latency
	s.mu.Unlock()

	return Snapshot{
		MessagesExpected:  s.messagesExpected,
		MessagesComplete:  s.messagesComplete.Load(),
		MessagesLost:      s.messagesLost.Load(),
		PacketsExpected:   s.packetsExpected,
		PacketsReceived:   s.packetsReceived.Load(),
		PacketsDuplicate:  s.packetsDuplicate.Load(),
		PacketsMalformed:  s.packetsMalformed.Load(),
		PacketsOutOfOrder: s.packetsOutOfOrder.Load(),
		MessagesSent:      s.messagesSent.Load(),
		PacketsSent:       s.packetsSent.Load(),
		PacketsDropped:    s.packetsDropped.Load(),
		BytesSent:         s.bytesSent.Load(),
		Latency:           lat,
		Elapsed:           s.clock.Now().Sub(s.started),
	}
}

// LossPercent is the share of expected messages that were lost.
func (s Snapshot) LossPercent() float64 {
	if s.MessagesExpected == 0 {
		return 0
	}
	return 100 * float64(s.MessagesLost) / float64(s.MessagesExpected)
}

// PacketLossPercent is the share of expected packets never received.
func (s Snapshot) PacketLossPercent() float64 {
	if s.PacketsExpected == 0 {
		return 0
	}
	missing := s.PacketsExpected - (s.PacketsReceived - s.PacketsDuplicate)
	if missing < 0 {
		missing = 0
	}
	return 100 * float64(missing) / float64(s.PacketsExpected)
}

// LatencySamples returns a copy of every stored latency sample.
func (s *Stats) LatencySamples() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.samples...)
}

// takeWindow returns and resets the latency window of the periodic report.
func (s *Stats) takeWindow() (Accumulator, []int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, samples, complete := s.window, s.windowSamples, s.windowComplete
	s.window = Accumulator{}
	s.windowSamples = nil
	s.windowComplete = 0
	return acc, samples, complete
}
