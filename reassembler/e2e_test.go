package reassembler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockcast/mcastcheck/internal/memconn"
	"github.com/blockcast/mcastcheck/packetizer"
	"github.com/blockcast/mcastcheck/reassembler"
	"github.com/blockcast/mcastcheck/stats"
	"github.com/blockcast/mcastcheck/wire"
)

type run struct {
	total, messageSize, packetSize int
	lossiness                      float64
	copies                         func([]byte) int
}

func (r run) execute(t *testing.T) (stats.Snapshot, reassembler.Termination) {
	t.Helper()
	perMessage := wire.PacketCount(r.messageSize, r.packetSize)

	pipe := memconn.New()
	pipe.Copies = r.copies

	txStats := stats.New(r.total, perMessage)
	tx, err := packetizer.New(packetizer.Config{
		TotalCount:  r.total,
		MessageSize: r.messageSize,
		PacketSize:  r.packetSize,
		Lossiness:   r.lossiness,
	}, pipe, txStats, packetizer.WithSeed(1))
	require.NoError(t, err)
	require.NoError(t, tx.Run(context.Background()))

	rxStats := stats.New(r.total, perMessage)
	asm := reassembler.New(reassembler.Config{
		TotalCount:        r.total,
		PacketsPerMessage: perMessage,
		ReportInterval:    100,
	}, rxStats, nil)
	term, err := reassembler.NewReceiver(pipe, asm, reassembler.ReceiverConfig{
		InitialTimeout: 100 * time.Millisecond,
		IdleTimeout:    100 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}).Run(context.Background())
	require.NoError(t, err)
	asm.Finish()
	return rxStats.Snapshot(), term
}

func TestEndToEndLossless(t *testing.T) {
	snap, term := run{total: 10, messageSize: 450, packetSize: 150}.execute(t)

	assert.Equal(t, reassembler.AllClassified, term)
	assert.Equal(t, int64(10), snap.MessagesComplete)
	assert.Equal(t, int64(0), snap.MessagesLost)
	assert.Equal(t, int64(0), snap.PacketsDuplicate)
	assert.Equal(t, int64(30), snap.PacketsReceived)
	assert.True(t, snap.Verdict(stats.Policy{}).Pass)
}

func TestEndToEndTotalLoss(t *testing.T) {
	snap, term := run{total: 10, messageSize: 450, packetSize: 150, lossiness: 100}.execute(t)

	assert.Equal(t, reassembler.IdleTimeout, term)
	assert.Equal(t, int64(0), snap.MessagesComplete)
	assert.Equal(t, int64(10), snap.MessagesLost)
	v := snap.Verdict(stats.Policy{})
	assert.False(t, v.Pass)
	assert.Contains(t, v.String(), "10 of 10 messages lost")
}

func TestEndToEndDuplicatedFirstPacket(t *testing.T) {
	copies := func(b []byte) int {
		var h wire.Header
		if err := h.UnmarshalBinary(b); err == nil && h.PacketIndex == 0 {
			return 2
		}
		return 1
	}
	snap, _ := run{total: 10, messageSize: 450, packetSize: 150, copies: copies}.execute(t)

	assert.Equal(t, int64(10), snap.MessagesComplete)
	assert.Equal(t, int64(10), snap.PacketsDuplicate)
	assert.False(t, snap.Verdict(stats.Policy{}).Pass)
	assert.True(t, snap.Verdict(stats.Policy{AllowDuplicates: true}).Pass)
}

func TestEndToEndPartialLoss(t *testing.T) {
	snap, _ := run{total: 200, messageSize: 450, packetSize: 150, lossiness: 10}.execute(t)

	assert.Equal(t, int64(200), snap.MessagesComplete+snap.MessagesLost)
	assert.Greater(t, snap.MessagesLost, int64(0))
	assert.Greater(t, snap.MessagesComplete, int64(0))
}
