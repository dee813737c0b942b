package capture

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/blockcast/mcastcheck/reassembler"
)

// Reader yields the UDP payloads of a pcap file in capture order.
type Reader struct {
	r       *pcapgo.Reader
	c       io.Closer
	filter  netip.AddrPort
	skipped int
}

// NewReader reads a pcap stream. When filter is valid only datagrams sent to
// that group and port are returned; otherwise every UDP datagram is.
func NewReader(r io.Reader, filter netip.AddrPort) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	return &Reader{r: pr, filter: filter}, nil
}

// Open reads the pcap file at path.
func Open(path string, filter netip.AddrPort) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := NewReader(f, filter)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.c = f
	return r, nil
}

// Next returns the next matching UDP payload and its capture time, or io.EOF.
func (r *Reader) Next() ([]byte, time.Time, error) {
	for {
		data, ci, err := r.r.ReadPacketData()
		if err != nil {
			return nil, time.Time{}, err
		}
		p := gopacket.NewPacket(data, r.r.LinkType(), gopacket.NoCopy)
		ipHdr, ok := p.NetworkLayer().(*layers.IPv4)
		if !ok {
			r.skipped++
			continue
		}
		udpHdr, ok := p.TransportLayer().(*layers.UDP)
		if !ok {
			r.skipped++
			continue
		}
		if r.filter.IsValid() {
			dst, _ := netip.AddrFromSlice(ipHdr.DstIP.To4())
			if dst != r.filter.Addr() || uint16(udpHdr.DstPort) != r.filter.Port() {
				r.skipped++
				continue
			}
		}
		return udpHdr.Payload, ci.Timestamp, nil
	}
}

// Skipped counts packets that were not matching UDP datagrams.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}

// Replay hands every datagram to asm, each one followed by duplicates extra
// copies, using capture time as the arrival time. It returns the number of
// datagrams read from the capture.
func Replay(r *Reader, asm *reassembler.Reassembler, duplicates int) (int, error) {
	n := 0
	for {
		payload, ts, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read capture: %w", err)
		}
		n++
		for range duplicates + 1 {
			asm.Handle(payload, ts)
		}
	}
}
