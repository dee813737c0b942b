package wire

import "time"

// MaxPacketCount is the largest number of packets a message may be cut into.
const MaxPacketCount = 1<<16 - 1

// PacketCount returns ceil(messageSize / packetSize).
func PacketCount(messageSize, packetSize int) int {
	if messageSize <= 0 || packetSize <= 0 {
		return 0
	}
	return (messageSize + packetSize - 1) / packetSize
}

// SegmentSize returns the number of message bytes carried by packet index.
// Every segment is packetSize bytes except the last, which holds the remainder.
func SegmentSize(messageSize, packetSize, index int) int {
	n := PacketCount(messageSize, packetSize)
	if index < 0 || index >= n {
		return 0
	}
	if index < n-1 {
		return packetSize
	}
	return messageSize - packetSize*(n-1)
}

// DatagramSize returns the on-wire size of packet index. Segments shorter than
// the header are padded up to HeaderLen.
func DatagramSize(messageSize, packetSize, index int) int {
	s := SegmentSize(messageSize, packetSize, index)
	if s == 0 {
		return 0
	}
	if s < HeaderLen {
		return HeaderLen
	}
	return s
}

// Timestamp converts t to microseconds since the Unix epoch.
func Timestamp(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

func TimeFromTimestamp(ts uint64) time.Time {
	return time.UnixMicro(int64(ts))
}

// Latency returns arrival minus the send timestamp in microseconds. The result
// is negative when the sender's clock runs ahead of the receiver's.
func Latency(sendTimestamp uint64, arrival time.Time) int64 {
	return arrival.UnixMicro() - int64(sendTimestamp)
}
