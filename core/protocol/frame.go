package protocol

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var ErrInvalidFrame = errors.New("invalid ethernet frame")

// Frame is a summary of an Ethernet frame for diagnostics.
type Frame struct {
	Src    net.HardwareAddr
	Dst    net.HardwareAddr
	Type   layers.EthernetType
	Length int
	// set for IPv4 and ARP payloads
	IPSrc netip.Addr
	IPDst netip.Addr
	Proto string
}

// ParseFrame decodes the headers of buff without copying it. The
// returned addresses alias buff.
func ParseFrame(buff []byte) (*Frame, error) {
	var (
		eth     layers.Ethernet
		arp     layers.ARP
		ip4     layers.IPv4
		ip6     layers.IPv6
		udp     layers.UDP
		tcp     layers.TCP
		icmp    layers.ICMPv4
		decoded []gopacket.LayerType
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp, &ip4, &ip6, &udp, &tcp, &icmp)
	parser.IgnoreUnsupported = true

	if err := parser.DecodeLayers(buff, &decoded); err != nil || len(decoded) == 0 {
		if err == nil {
			err = ErrInvalidFrame
		}
		return nil, errors.Wrapf(ErrInvalidFrame, "%d bytes: %v", len(buff), err)
	}

	f := &Frame{
		Src:    eth.SrcMAC,
		Dst:    eth.DstMAC,
		Type:   eth.EthernetType,
		Length: len(buff),
		Proto:  eth.EthernetType.String(),
	}
	for _, typ := range decoded {
		switch typ {
		case layers.LayerTypeARP:
			f.IPSrc, _ = netip.AddrFromSlice(arp.SourceProtAddress)
			f.IPDst, _ = netip.AddrFromSlice(arp.DstProtAddress)
		case layers.LayerTypeIPv4:
			f.IPSrc, _ = netip.AddrFromSlice(ip4.SrcIP.To4())
			f.IPDst, _ = netip.AddrFromSlice(ip4.DstIP.To4())
			f.Proto = ip4.Protocol.String()
		case layers.LayerTypeIPv6:
			f.IPSrc, _ = netip.AddrFromSlice(ip6.SrcIP)
			f.IPDst, _ = netip.AddrFromSlice(ip6.DstIP)
			f.Proto = ip6.NextHeader.String()
		}
	}
	return f, nil
}

func (f *Frame) String() string {
	if f.IPSrc.IsValid() {
		return fmt.Sprintf("%s %s -> %s (%s -> %s) %d bytes", f.Proto, f.IPSrc, f.IPDst, f.Src, f.Dst, f.Length)
	}
	return fmt.Sprintf("%s %s -> %s %d bytes", f.Proto, f.Src, f.Dst, f.Length)
}

// Describe is ParseFrame for log lines; it never fails.
func Describe(buff []byte) string {
	f, err := ParseFrame(buff)
	if err != nil {
		return fmt.Sprintf("undecodable frame of %d bytes", len(buff))
	}
	return f.String()
}
