package wire_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/blockcast/mcastcheck/wire"
)

func TestEncodePacket(t *testing.T) {
	p := wire.Packet{
		Header: wire.Header{
			MessageID:     0x01020304,
			PacketIndex:   2,
			PacketCount:   3,
			SendTimestamp: 0x1122334455667788,
		},
		Payload: []byte{0xaa, 0xbb},
	}
	encoded, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []byte{
		0x01, 0x02, 0x03, 0x04, // message id
		0x00, 0x02, // packet index
		0x00, 0x03, // packet count
		0x00, 0x00, 0x00, 0x02, // payload length
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, // timestamp
		0xaa, 0xbb,
	}
	if !reflect.DeepEqual(encoded, expected) {
		t.Errorf("unexpected encoding: got %x, want %x", encoded, expected)
	}
}

func TestDecodePacket(t *testing.T) {
	data := []byte{
		0, 0, 0, 7,
		0, 0,
		0, 1,
		0, 0, 0, 3,
		0, 0, 0, 0, 0, 0, 0x03, 0xe8,
		1, 2, 3,
	}
	expected := wire.Packet{
		Header: wire.Header{
			MessageID:     7,
			PacketIndex:   0,
			PacketCount:   1,
			PayloadLength: 3,
			SendTimestamp: 1000,
		},
		Payload: []byte{1, 2, 3},
	}
	var p wire.Packet
	if err := p.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(p, expected) {
		t.Errorf("decoded packet does not match expected: got %+v, want %+v", p, expected)
	}
}

func TestDecodePacketErrorHandling(t *testing.T) {
	valid := wire.Packet{Header: wire.Header{PacketIndex: 0, PacketCount: 2}, Payload: make([]byte, 10)}
	good, err := valid.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badIndex := wire.Packet{Header: wire.Header{PacketIndex: 2, PacketCount: 2}}
	badIndexData, _ := badIndex.MarshalBinary()
	zeroCount := wire.Packet{Header: wire.Header{PacketIndex: 0, PacketCount: 0}}
	zeroCountData, _ := zeroCount.MarshalBinary()

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, wire.ErrShortPacket},
		{"short header", good[:wire.HeaderLen-1], wire.ErrShortPacket},
		{"truncated payload", good[:len(good)-1], wire.ErrLengthMismatch},
		{"trailing bytes", append(append([]byte{}, good...), 0), wire.ErrLengthMismatch},
		{"index past count", badIndexData, wire.ErrBadIndex},
		{"zero count", zeroCountData, wire.ErrBadIndex},
	}
	for _, tc := range cases {
		var p wire.Packet
		err := p.UnmarshalBinary(tc.data)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestMarshalToShortBuffer(t *testing.T) {
	p := wire.Packet{Header: wire.Header{PacketCount: 1}, Payload: make([]byte, 4)}
	if _, err := p.MarshalTo(make([]byte, wire.HeaderLen)); err == nil {
		t.Errorf("expected error for short buffer, got nil")
	}
}
