package stats

import (
	"bytes"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockcast/mcastcheck/internal/clock"
)

func TestAccumulatorIncludesNegativeSamples(t *testing.T) {
	var a Accumulator
	for _, v := range []int64{-40, 100, 60} {
		a.Add(v)
	}
	assert.Equal(t, int64(3), a.Count)
	assert.Equal(t, int64(-40), a.Min)
	assert.Equal(t, int64(100), a.Max)
	assert.InDelta(t, 40.0, a.Avg(), 1e-9)
	assert.Equal(t, "min= -40, avg= 40, max= 100", a.String())
}

func TestAccumulatorEmpty(t *testing.T) {
	var a Accumulator
	assert.Equal(t, 0.0, a.Avg())
	assert.Equal(t, "no samples", a.String())
}

func TestPercentiles(t *testing.T) {
	samples := make([]int64, 0, 1000)
	for i := 1000; i >= 1; i-- {
		samples = append(samples, int64(i))
	}

	reports := Percentiles(samples, DefaultPercentiles)
	require.Len(t, reports, 4)

	all := reports[0]
	assert.Equal(t, 1000, all.Count)
	assert.Equal(t, int64(1), all.Min)
	assert.Equal(t, int64(1000), all.Max)
	assert.InDelta(t, 500.5, all.Avg, 1e-9)

	assert.Equal(t, 999, reports[1].Count)
	assert.Equal(t, int64(999), reports[1].Max)
	assert.Equal(t, 990, reports[2].Count)
	assert.Equal(t, 900, reports[3].Count)
	assert.Equal(t, int64(900), reports[3].Max)

	// input order untouched
	assert.Equal(t, int64(1000), samples[0])
}

func TestPercentilesSmallSets(t *testing.T) {
	reports := Percentiles([]int64{5}, []float64{100, 90})
	assert.Equal(t, 1, reports[0].Count)
	assert.True(t, math.IsNaN(reports[0].Deviation))
	assert.Equal(t, Percentile{}, reports[1])

	assert.Equal(t, []Percentile{{}}, Percentiles(nil, []float64{100}))
}

func TestRecordAndSnapshot(t *testing.T) {
	s := New(10, 3)
	s.RecordPacket()
	s.RecordPacket()
	s.RecordDuplicate()
	s.RecordMalformed()
	s.RecordOutOfOrder()
	s.RecordComplete(120)
	s.RecordComplete(-30)
	s.RecordLost()

	snap := s.Snapshot()
	assert.Equal(t, int64(10), snap.MessagesExpected)
	assert.Equal(t, int64(30), snap.PacketsExpected)
	assert.Equal(t, int64(2), snap.MessagesComplete)
	assert.Equal(t, int64(1), snap.MessagesLost)
	assert.Equal(t, int64(2), snap.PacketsReceived)
	assert.Equal(t, int64(1), snap.PacketsDuplicate)
	assert.Equal(t, int64(1), snap.PacketsMalformed)
	assert.Equal(t, int64(1), snap.PacketsOutOfOrder)
	assert.Equal(t, int64(-30), snap.Latency.Min)
	assert.Equal(t, int64(120), snap.Latency.Max)
	assert.Equal(t, int64(3), s.Classified())
	assert.InDelta(t, 10.0, snap.LossPercent(), 1e-9)
	assert.ElementsMatch(t, []int64{120, -30}, s.LatencySamples())
}

func TestSampleStoreIsBounded(t *testing.T) {
	s := New(2, 1)
	for i := 0; i < 5; i++ {
		s.RecordComplete(int64(i))
	}
	assert.Len(t, s.LatencySamples(), 2)
	assert.Equal(t, int64(5), s.Snapshot().Latency.Count)
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name   string
		snap   Snapshot
		policy Policy
		pass   bool
		causes int
	}{
		{name: "clean", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 10}, pass: true},
		{name: "lost", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 9, MessagesLost: 1}, causes: 1},
		{name: "duplicates", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 10, PacketsDuplicate: 10}, causes: 1},
		{name: "duplicates allowed", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 10, PacketsDuplicate: 10}, policy: Policy{AllowDuplicates: true}, pass: true},
		{name: "lost and duplicates", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 8, MessagesLost: 2, PacketsDuplicate: 1}, causes: 2},
		{name: "unclassified", snap: Snapshot{MessagesExpected: 10, MessagesComplete: 8}, causes: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.snap.Verdict(tt.policy)
			assert.Equal(t, tt.pass, v.Pass)
			assert.Len(t, v.Causes, tt.causes)
			if tt.pass {
				assert.Equal(t, "PASS", v.String())
			} else {
				assert.Contains(t, v.String(), "FAIL: ")
			}
		})
	}
}

func TestPeriodicReportResetsWindow(t *testing.T) {
	s := New(100, 1)
	s.RecordComplete(10)
	s.RecordComplete(20)

	var buf bytes.Buffer
	snap := s.PeriodicReport(&buf)
	assert.Equal(t, int64(2), snap.MessagesComplete)
	out := buf.String()
	assert.Contains(t, out, "Classified 2 of 100 messages")
	assert.Contains(t, out, "    2 complete messages since the last report.")
	assert.Contains(t, out, "min= 10, avg= 15, max= 20")
	assert.Contains(t, out, "100.0 % : cnt= 2/2")

	buf.Reset()
	s.RecordComplete(50)
	s.PeriodicReport(&buf)
	out = buf.String()
	assert.Contains(t, out, "    1 complete messages since the last report.")
	assert.Contains(t, out, "latency (us) since the last report: min= 50, avg= 50, max= 50")
	assert.Contains(t, out, "latency (us) so far: min= 10, avg= 27, max= 50")
}

func TestFinalReport(t *testing.T) {
	s := New(3, 2)
	for i := 0; i < 4; i++ {
		s.RecordPacket()
	}
	s.RecordComplete(100)
	s.RecordComplete(300)
	s.RecordLost()

	var buf bytes.Buffer
	v := s.FinalReport(&buf, Policy{})
	assert.False(t, v.Pass)

	out := buf.String()
	assert.Contains(t, out, "Received 4 packets out of 6, lost 33.3%")
	assert.Contains(t, out, "Received 2 complete messages out of 3, lost 1 (33.3%)")
	assert.Contains(t, out, "Received 0 duplicate packets")
	assert.Contains(t, out, "Latency (us): min= 100, avg= 200, max= 300")
	assert.Contains(t, out, "Result: FAIL: 1 of 3 messages lost (33.3%)")
}

func TestTransmitterReport(t *testing.T) {
	s := New(2, 2)
	s.RecordSent(150)
	s.RecordSent(150)
	s.RecordDropped()
	s.RecordDropped()
	s.RecordMessageSent()
	s.RecordMessageSent()

	var buf bytes.Buffer
	snap := s.TransmitterReport(&buf)
	assert.Equal(t, int64(2), snap.PacketsSent)
	assert.Contains(t, buf.String(), "Sent 2 of 2 messages")
	assert.Contains(t, buf.String(), "Sent 2 packets (300 bytes), withheld 2 (50.0%)")
}

func TestElapsedFollowsClock(t *testing.T) {
	fc := clock.NewFake(time.Unix(1700000000, 0))
	s := New(2, 1, WithClock(fc))
	assert.Zero(t, s.Snapshot().Elapsed)

	fc.Advance(1500 * time.Millisecond)
	s.RecordMessageSent()
	var buf bytes.Buffer
	snap := s.TransmitterReport(&buf)
	assert.Equal(t, 1500*time.Millisecond, snap.Elapsed)
	assert.Contains(t, buf.String(), "Sent 1 of 2 messages in 1.5s")
}

func TestConcurrentReaders(t *testing.T) {
	s := New(1000, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = s.Snapshot()
		}
	}()
	for i := 0; i < 1000; i++ {
		s.RecordPacket()
		s.RecordComplete(int64(i))
	}
	wg.Wait()
	assert.Equal(t, int64(1000), s.Snapshot().MessagesComplete)
}
