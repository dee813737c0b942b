package wire_test

import (
	"testing"
	"time"

	"github.com/blockcast/mcastcheck/wire"
)

func TestPacketCountAndLastSegment(t *testing.T) {
	for s := 1; s <= 700; s += 7 {
		for p := 1; p <= 200; p += 13 {
			n := wire.PacketCount(s, p)
			want := (s + p - 1) / p
			if n != want {
				t.Fatalf("PacketCount(%d, %d) = %d, want %d", s, p, n, want)
			}
			total := 0
			for i := 0; i < n; i++ {
				total += wire.SegmentSize(s, p, i)
			}
			if total != s {
				t.Fatalf("segments of (%d, %d) sum to %d", s, p, total)
			}
			if last := wire.SegmentSize(s, p, n-1); last != s-p*(n-1) {
				t.Fatalf("last segment of (%d, %d) = %d, want %d", s, p, last, s-p*(n-1))
			}
		}
	}
}

func TestSegmentSizeExamples(t *testing.T) {
	cases := []struct {
		size, packet, index, want int
	}{
		{450, 150, 0, 150},
		{450, 150, 2, 150},
		{450, 150, 3, 0},
		{451, 150, 3, 1},
		{100, 1300, 0, 100},
		{0, 150, 0, 0},
	}
	for _, tc := range cases {
		if got := wire.SegmentSize(tc.size, tc.packet, tc.index); got != tc.want {
			t.Errorf("SegmentSize(%d, %d, %d) = %d, want %d", tc.size, tc.packet, tc.index, got, tc.want)
		}
	}
}

func TestDatagramSizePadsToHeader(t *testing.T) {
	if got := wire.DatagramSize(451, 150, 3); got != wire.HeaderLen {
		t.Errorf("unexpected datagram size: got %d, want %d", got, wire.HeaderLen)
	}
	if got := wire.DatagramSize(450, 150, 1); got != 150 {
		t.Errorf("unexpected datagram size: got %d, want 150", got)
	}
}

func TestLatencyMayBeNegative(t *testing.T) {
	now := time.UnixMicro(5_000_000)
	if got := wire.Latency(wire.Timestamp(now.Add(-250*time.Microsecond)), now); got != 250 {
		t.Errorf("unexpected latency: got %d, want 250", got)
	}
	if got := wire.Latency(wire.Timestamp(now.Add(time.Millisecond)), now); got != -1000 {
		t.Errorf("unexpected latency: got %d, want -1000", got)
	}
	if !wire.TimeFromTimestamp(wire.Timestamp(now)).Equal(now) {
		t.Errorf("timestamp round trip lost precision")
	}
}
