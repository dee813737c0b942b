package stats

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Policy tunes the final verdict.
type Policy struct {
	// AllowDuplicates keeps duplicate packets from failing the run.
	AllowDuplicates bool
}

type Verdict struct {
	Pass   bool
	Causes []string
}

func (v Verdict) String() string {
	if v.Pass {
		return "PASS"
	}
	return "FAIL: " + strings.Join(v.Causes, "; ")
}

// Verdict passes when no message was lost and no unexpected duplicate arrived.
func (s Snapshot) Verdict(p Policy) Verdict {
	var causes []string
	if s.MessagesLost > 0 {
		causes = append(causes, fmt.Sprintf("%d of %d messages lost (%.1f%%)", s.MessagesLost, s.MessagesExpected, s.LossPercent()))
	}
	if unclassified := s.MessagesExpected - s.MessagesComplete - s.MessagesLost; unclassified > 0 {
		causes = append(causes, fmt.Sprintf("%d messages not classified", unclassified))
	}
	if s.PacketsDuplicate > 0 && !p.AllowDuplicates {
		causes = append(causes, fmt.Sprintf("%d duplicate packets", s.PacketsDuplicate))
	}
	return Verdict{Pass: len(causes) == 0, Causes: causes}
}

// PeriodicReport writes a running snapshot and the latency percentiles of the
// messages completed since the previous report.
func (s *Stats) PeriodicReport(w io.Writer) Snapshot {
	snap := s.Snapshot()
	window, samples, complete := s.takeWindow()

	fmt.Fprintf(w, "Classified %d of %d messages:\n", snap.MessagesComplete+snap.MessagesLost, snap.MessagesExpected)
	fmt.Fprintf(w, "    %5d complete messages so far.\n", snap.MessagesComplete)
	fmt.Fprintf(w, "    %5d complete messages since the last report.\n", complete)
	fmt.Fprintf(w, "    %5d lost messages, %d duplicate packets.\n", snap.MessagesLost, snap.PacketsDuplicate)
	fmt.Fprintf(w, "    latency (us) so far: %s\n", snap.Latency)
	fmt.Fprintf(w, "    latency (us) since the last report: %s\n", window)
	if len(samples) > 0 {
		for _, p := range Percentiles(samples, DefaultPercentiles) {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}
	return snap
}

// FinalReport writes the end of run summary and returns the verdict.
func (s *Stats) FinalReport(w io.Writer, p Policy) Verdict {
	snap := s.Snapshot()
	verdict := snap.Verdict(p)

	fmt.Fprintln(w, "Done")
	fmt.Fprintf(w, "Received %d packets out of %d, lost %.1f%%\n",
		snap.PacketsReceived-snap.PacketsDuplicate, snap.PacketsExpected, snap.PacketLossPercent())
	fmt.Fprintf(w, "Received %d complete messages out of %d, lost %d (%.1f%%)\n",
		snap.MessagesComplete, snap.MessagesExpected, snap.MessagesLost, snap.LossPercent())
	fmt.Fprintf(w, "Received %d duplicate packets\n", snap.PacketsDuplicate)
	fmt.Fprintf(w, "Discarded %d malformed packets, %d packets arrived out of order\n",
		snap.PacketsMalformed, snap.PacketsOutOfOrder)
	fmt.Fprintf(w, "Latency (us): %s\n", snap.Latency)
	if samples := s.LatencySamples(); len(samples) > 0 {
		for _, pct := range Percentiles(samples, DefaultPercentiles) {
			fmt.Fprintf(w, "    %s\n", pct)
		}
	}
	fmt.Fprintln(w, "Note: latency is only meaningful when the transmitter and receiver clocks are synchronized")
	fmt.Fprintf(w, "Result: %s\n", verdict)
	return verdict
}

// TransmitterReport writes the transmitter's summary.
func (s *Stats) TransmitterReport(w io.Writer) Snapshot {
	snap := s.Snapshot()
	attempted := snap.PacketsSent + snap.PacketsDropped
	var dropped float64
	if attempted > 0 {
		dropped = 100 * float64(snap.PacketsDropped) / float64(attempted)
	}
	fmt.Fprintln(w, "Done")
	fmt.Fprintf(w, "Sent %d of %d messages in %s\n", snap.MessagesSent, snap.MessagesExpected, snap.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Sent %d packets (%d bytes), withheld %d (%.1f%%)\n",
		snap.PacketsSent, snap.BytesSent, snap.PacketsDropped, dropped)
	return snap
}
