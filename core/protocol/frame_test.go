package protocol

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, l...))
	return buf.Bytes()
}

func TestParseFrameIPv4(t *testing.T) {
	src := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dst := net.HardwareAddr{0x00, 0x23, 0xC1, 0xDE, 0xD0, 0x0D}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 2, 1},
		DstIP:    net.IP{10, 0, 2, 99},
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buff := serialize(t, &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeIPv4}, ip, udp, gopacket.Payload("hello"))

	f, err := ParseFrame(buff)
	require.NoError(t, err)
	assert.Equal(t, src, f.Src)
	assert.Equal(t, dst, f.Dst)
	assert.Equal(t, layers.EthernetTypeIPv4, f.Type)
	assert.Equal(t, netip.MustParseAddr("10.0.2.1"), f.IPSrc)
	assert.Equal(t, netip.MustParseAddr("10.0.2.99"), f.IPDst)
	assert.Equal(t, "UDP", f.Proto)
	assert.Contains(t, Describe(buff), "10.0.2.1 -> 10.0.2.99")
}

func TestParseFrameShort(t *testing.T) {
	_, err := ParseFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidFrame)
	assert.Equal(t, "undecodable frame of 3 bytes", Describe([]byte{1, 2, 3}))
}
