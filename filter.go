package mcastcheck

import (
	"golang.org/x/net/bpf"

	"github.com/blockcast/mcastcheck/wire"
)

// udpHeaderLen is included in the length a socket filter sees on a UDP socket.
const udpHeaderLen = 8

// MinLengthFilter assembles a socket filter that drops datagrams whose UDP
// payload is shorter than minPayload bytes.
func MinLengthFilter(minPayload uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble([]bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpGreaterOrEqual, Val: minPayload + udpHeaderLen, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0x40000},
	})
}

// HeaderFilter drops datagrams too short to carry a packet header.
func HeaderFilter() ([]bpf.RawInstruction, error) {
	return MinLengthFilter(wire.HeaderLen)
}
