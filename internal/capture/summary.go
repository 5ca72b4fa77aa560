package capture

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Summary holds statistics about a finished capture file. Tunnel counters
// cover only the datagrams matching the tunnel UDP port the capture was
// scoped to; a non-zero total with zero tunnel packets usually means the
// filter port was wrong for the tunnel under test.
type Summary struct {
	TotalPackets  uint64
	TotalBytes    uint64
	TunnelPackets uint64
	TunnelBytes   uint64
}

func (s Summary) String() string {
	return fmt.Sprintf("packets=%d bytes=%d tunnel_packets=%d tunnel_bytes=%d",
		s.TotalPackets, s.TotalBytes, s.TunnelPackets, s.TunnelBytes)
}

// Summarize reads the capture file written by the capture tool and counts
// how much of it is tunnel traffic on the given UDP port. Used after
// teardown to confirm the capture actually recorded the benchmark.
func Summarize(path string, tunnelPort int) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening capture file: %v", err)
	}
	defer f.Close()

	source, err := newPacketSource(f)
	if err != nil {
		return nil, err
	}

	port := layers.UDPPort(tunnelPort)
	summary := &Summary{}
	for packet := range source.Packets() {
		summary.TotalPackets++
		summary.TotalBytes += uint64(len(packet.Data()))

		udp, ok := packet.TransportLayer().(*layers.UDP)
		if !ok {
			continue
		}
		if udp.SrcPort == port || udp.DstPort == port {
			summary.TunnelPackets++
			summary.TunnelBytes += uint64(len(packet.Data()))
		}
	}
	return summary, nil
}

// tcpdump writes legacy pcap, but tooling that post-processes a run may
// hand us pcapng; accept both.
func newPacketSource(f *os.File) (*gopacket.PacketSource, error) {
	if ngReader, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions); err == nil {
		return gopacket.NewPacketSource(ngReader, ngReader.LinkType()), nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("error resetting file position: %v", err)
	}
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("error creating pcap reader: %v", err)
	}
	return gopacket.NewPacketSource(reader, reader.LinkType()), nil
}
