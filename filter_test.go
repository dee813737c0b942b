package mcastcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"github.com/blockcast/mcastcheck/wire"
)

func TestHeaderFilter(t *testing.T) {
	raw, err := HeaderFilter()
	require.NoError(t, err)

	insts, ok := bpf.Disassemble(raw)
	require.True(t, ok)
	vm, err := bpf.NewVM(insts)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload int
		accept  bool
	}{
		{"empty", 0, false},
		{"one short of a header", wire.HeaderLen - 1, false},
		{"bare header", wire.HeaderLen, true},
		{"full packet", 1300, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the filter sees the UDP header in front of the payload
			n, err := vm.Run(make([]byte, udpHeaderLen+tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.accept, n > 0)
		})
	}
}
