// Package reassembler is the receiving side of a test. It classifies every
// datagram against a per-message record and feeds the statistics engine.
package reassembler

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/blockcast/mcastcheck/internal/logger"
	"github.com/blockcast/mcastcheck/stats"
	"github.com/blockcast/mcastcheck/wire"
)

// State is the lifecycle position of one message id.
type State uint8

const (
	Unseen State = iota
	InProgress
	Complete
	AbandonedIncomplete
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case InProgress:
		return "in-progress"
	case Complete:
		return "complete"
	case AbandonedIncomplete:
		return "abandoned"
	}
	return "unknown"
}

// Outcome classifies one datagram.
type Outcome uint8

const (
	Malformed Outcome = iota
	OutOfRange
	NewPacket
	Duplicate
	Completed
	// Late is a packet for a message already abandoned by Finish.
	Late
)

func (o Outcome) String() string {
	switch o {
	case Malformed:
		return "malformed"
	case OutOfRange:
		return "out-of-range"
	case NewPacket:
		return "new"
	case Duplicate:
		return "duplicate"
	case Completed:
		return "completed"
	case Late:
		return "late"
	}
	return "unknown"
}

type record struct {
	state     State
	expected  uint16
	seenCount uint16
	seen      []bool
	firstSeen time.Time
	latency   int64
}

type Config struct {
	TotalCount int
	// PacketsPerMessage is what the local configuration predicts; packets carry
	// their own count and a mismatch is only reported.
	PacketsPerMessage int
	// ReportInterval triggers a periodic report every that many classified messages.
	ReportInterval int
}

// Reassembler tracks every message id of a run in an arena indexed by id.
// It is not safe for concurrent use; the receive loop is its only caller.
type Reassembler struct {
	cfg      Config
	stats    *stats.Stats
	log      logger.Logger
	records  []record
	onReport func()

	// malformedWarn surfaces foreign traffic on the group above debug level
	malformedWarn *rate.Sometimes

	complete   int
	lastID     uint32
	lastIndex  uint16
	havePrev   bool
	mismatched bool
}

func New(cfg Config, st *stats.Stats, log logger.Logger) *Reassembler {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Reassembler{
		cfg:     cfg,
		stats:   st,
		log:     log,
		records: make([]record, cfg.TotalCount),

		malformedWarn: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// OnReport registers the callback run every ReportInterval classified messages.
func (r *Reassembler) OnReport(fn func()) {
	r.onReport = fn
}

// Handle classifies one datagram that arrived at the given time.
func (r *Reassembler) Handle(datagram []byte, arrival time.Time) Outcome {
	var pkt wire.Packet
	if err := pkt.UnmarshalBinary(datagram); err != nil {
		r.malformed()
		r.log.WithError(err).Debug("Discarding malformed packet")
		return Malformed
	}
	if int64(pkt.MessageID) >= int64(len(r.records)) {
		r.log.WithField("message_id", pkt.MessageID).Debug("Discarding out of range packet")
		return OutOfRange
	}

	rec := &r.records[pkt.MessageID]
	if rec.state == AbandonedIncomplete {
		r.log.WithField("message_id", pkt.MessageID).Debug("Discarding packet of abandoned message")
		return Late
	}
	if rec.state != Unseen && pkt.PacketCount != rec.expected {
		r.malformed()
		r.log.WithFields(map[string]interface{}{
			"message_id":   pkt.MessageID,
			"packet_count": pkt.PacketCount,
			"expected":     rec.expected,
		}).Debug("Discarding packet with inconsistent packet count")
		return Malformed
	}

	r.stats.RecordPacket()
	r.trackOrder(pkt.MessageID, pkt.PacketIndex, pkt.PacketCount)

	if rec.state == Unseen {
		r.checkPacketCount(pkt.PacketCount)
		rec.state = InProgress
		rec.expected = pkt.PacketCount
		rec.seen = make([]bool, pkt.PacketCount)
		rec.firstSeen = arrival
	}

	if rec.seen[pkt.PacketIndex] {
		r.stats.RecordDuplicate()
		r.log.WithFields(map[string]interface{}{
			"message_id":   pkt.MessageID,
			"packet_index": pkt.PacketIndex,
		}).Debug("Duplicate packet")
		return Duplicate
	}
	rec.seen[pkt.PacketIndex] = true
	rec.seenCount++
	rec.latency = wire.Latency(pkt.SendTimestamp, arrival)

	if rec.seenCount < rec.expected {
		return NewPacket
	}

	// the completing packet's latency represents the message
	rec.state = Complete
	r.complete++
	r.stats.RecordComplete(rec.latency)
	r.classified()
	return Completed
}

func (r *Reassembler) malformed() {
	r.stats.RecordMalformed()
	r.malformedWarn.Do(func() {
		r.log.WithField("malformed", r.stats.Snapshot().PacketsMalformed).
			Warn("Receiving malformed packets, is another application using this group and port?")
	})
}

// trackOrder counts arrivals that are not the successor of the previous one.
func (r *Reassembler) trackOrder(id uint32, index, count uint16) {
	if r.havePrev {
		nextID, nextIndex := r.lastID, r.lastIndex+1
		if r.lastIndex+1 >= r.prevCount() {
			nextID, nextIndex = r.lastID+1, 0
		}
		if id != nextID || index != nextIndex {
			r.stats.RecordOutOfOrder()
		}
	}
	r.lastID, r.lastIndex, r.havePrev = id, index, true
}

func (r *Reassembler) prevCount() uint16 {
	return r.records[r.lastID].expected
}

func (r *Reassembler) checkPacketCount(count uint16) {
	if r.mismatched || r.cfg.PacketsPerMessage <= 0 || int(count) == r.cfg.PacketsPerMessage {
		return
	}
	r.mismatched = true
	r.log.WithFields(map[string]interface{}{
		"packet_count": count,
		"configured":   r.cfg.PacketsPerMessage,
	}).Warn("Transmitter packet count differs from the configured message and packet size")
}

func (r *Reassembler) classified() {
	if r.onReport == nil || r.cfg.ReportInterval <= 0 {
		return
	}
	if r.stats.Classified()%int64(r.cfg.ReportInterval) == 0 {
		r.onReport()
	}
}

// Done reports whether every message of the run is complete.
func (r *Reassembler) Done() bool {
	return r.complete == len(r.records)
}

// State returns the lifecycle state of message id.
func (r *Reassembler) State(id uint32) State {
	if int64(id) >= int64(len(r.records)) {
		return Unseen
	}
	return r.records[id].state
}

// Finish abandons every message that is not complete and records it as lost.
// It returns the number of messages abandoned; calling it again is a no-op.
func (r *Reassembler) Finish() int {
	abandoned := 0
	for i := range r.records {
		rec := &r.records[i]
		if rec.state == Complete || rec.state == AbandonedIncomplete {
			continue
		}
		if rec.state == InProgress {
			r.log.WithFields(map[string]interface{}{
				"message_id": i,
				"received":   rec.seenCount,
				"expected":   rec.expected,
			}).Debug("Message incomplete")
		}
		rec.state = AbandonedIncomplete
		rec.seen = nil
		r.stats.RecordLost()
		abandoned++
	}
	return abandoned
}
