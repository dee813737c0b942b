package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
	0                   1                   2                   3
	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1

+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                          Message ID                           |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|         Packet Index          |         Packet Count          |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                        Payload Length                         |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
+                Send Timestamp (microseconds)                  +
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
~                            Payload                            ~
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

	All fields are in network byte order.
*/

// HeaderLen is the encoded size of Header.
const HeaderLen = 20

// MaxDatagramLen is the largest UDP payload an IPv4 datagram can carry.
const MaxDatagramLen = 65507

var (
	ErrShortPacket    = errors.New("packet shorter than header")
	ErrLengthMismatch = errors.New("payload length does not match datagram")
	ErrBadIndex       = errors.New("packet index out of range")
)

type Header struct {
	MessageID     uint32
	PacketIndex   uint16
	PacketCount   uint16
	PayloadLength uint32
	SendTimestamp uint64
}

// MarshalTo writes the header into b, which must hold at least HeaderLen bytes.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < HeaderLen {
		return fmt.Errorf("buffer too short for Header: %d", len(b))
	}
	binary.BigEndian.PutUint32(b[0:4], h.MessageID)
	binary.BigEndian.PutUint16(b[4:6], h.PacketIndex)
	binary.BigEndian.PutUint16(b[6:8], h.PacketCount)
	binary.BigEndian.PutUint32(b[8:12], h.PayloadLength)
	binary.BigEndian.PutUint64(b[12:20], h.SendTimestamp)
	return nil
}

func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderLen {
		return fmt.Errorf("%w: %d", ErrShortPacket, len(b))
	}
	h.MessageID = binary.BigEndian.Uint32(b[0:4])
	h.PacketIndex = binary.BigEndian.Uint16(b[4:6])
	h.PacketCount = binary.BigEndian.Uint16(b[6:8])
	h.PayloadLength = binary.BigEndian.Uint32(b[8:12])
	h.SendTimestamp = binary.BigEndian.Uint64(b[12:20])
	return nil
}

// Packet is one datagram on the wire: a header and its filler payload.
type Packet struct {
	Header
	Payload []byte
}

// Len returns the encoded size of the packet.
func (p *Packet) Len() int {
	return HeaderLen + len(p.Payload)
}

// MarshalTo encodes the packet into b and returns the number of bytes written.
// PayloadLength is taken from the payload, not from the header field.
func (p *Packet) MarshalTo(b []byte) (int, error) {
	n := p.Len()
	if len(b) < n {
		return 0, fmt.Errorf("buffer too short for Packet: %d < %d", len(b), n)
	}
	p.PayloadLength = uint32(len(p.Payload))
	if err := p.Header.MarshalTo(b); err != nil {
		return 0, err
	}
	copy(b[HeaderLen:n], p.Payload)
	return n, nil
}

func (p *Packet) MarshalBinary() (data []byte, err error) {
	data = make([]byte, p.Len())
	if _, err = p.MarshalTo(data); err != nil {
		return nil, err
	}
	return data, nil
}

// UnmarshalBinary decodes a datagram. Payload aliases data.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if err := p.Header.UnmarshalBinary(data); err != nil {
		return err
	}
	if int64(p.PayloadLength) != int64(len(data)-HeaderLen) {
		return fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, p.PayloadLength, len(data)-HeaderLen)
	}
	if p.PacketCount == 0 || p.PacketIndex >= p.PacketCount {
		return fmt.Errorf("%w: index %d of %d", ErrBadIndex, p.PacketIndex, p.PacketCount)
	}
	p.Payload = data[HeaderLen:]
	return nil
}
