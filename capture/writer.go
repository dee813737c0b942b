// Package capture records received datagrams to pcap files and reads them
// back for offline replay.
package capture

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// snapLen covers a maximal UDP datagram with its Ethernet, IPv4 and UDP headers.
const snapLen = 262144

// Writer frames every datagram as Ethernet/IPv4/UDP addressed to the group
// so captures open in standard tools.
type Writer struct {
	w     *pcapgo.Writer
	c     io.Closer
	eth   layers.Ethernet
	ip    layers.IPv4
	udp   layers.UDP
	buf   gopacket.SerializeBuffer
	opts  gopacket.SerializeOptions
	count int
}

// NewWriter writes a pcap file header to w. dst is the group and port the
// datagrams were received on.
func NewWriter(w io.Writer, dst netip.AddrPort) (*Writer, error) {
	if !dst.Addr().Is4() {
		return nil, fmt.Errorf("capture destination %s is not ipv4", dst)
	}
	pw := pcapgo.NewWriterNanos(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	group := dst.Addr().As4()
	cw := &Writer{
		w: pw,
		eth: layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
			DstMAC:       multicastMAC(group),
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip: layers.IPv4{
			Version:  4,
			TTL:      1,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4zero.To4(),
			DstIP:    net.IP(group[:]),
		},
		udp: layers.UDP{
			SrcPort: layers.UDPPort(dst.Port()),
			DstPort: layers.UDPPort(dst.Port()),
		},
		buf:  gopacket.NewSerializeBuffer(),
		opts: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}
	if err := cw.udp.SetNetworkLayerForChecksum(&cw.ip); err != nil {
		return nil, err
	}
	return cw, nil
}

// Create opens path for writing and returns a Writer that closes it.
func Create(path string, dst netip.AddrPort) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := NewWriter(f, dst)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// multicastMAC maps an IPv4 group onto 01:00:5e plus its low 23 bits.
func multicastMAC(group [4]byte) net.HardwareAddr {
	return net.HardwareAddr{0x01, 0x00, 0x5e, group[1] & 0x7f, group[2], group[3]}
}

// WriteDatagram records one UDP payload with its arrival time.
func (w *Writer) WriteDatagram(b []byte, ts time.Time) error {
	w.ip.Id = uint16(w.count)
	err := gopacket.SerializeLayers(w.buf, w.opts, &w.eth, &w.ip, &w.udp, gopacket.Payload(b))
	if err != nil {
		return fmt.Errorf("serialize datagram: %w", err)
	}
	data := w.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of datagrams written.
func (w *Writer) Count() int {
	return w.count
}

func (w *Writer) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}
