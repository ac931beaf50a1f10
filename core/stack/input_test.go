package stack

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upHarness(t *testing.T, padding int) *harness {
	h := newHarness(t, padding, "10.0.2.99", "255.255.0.0", "10.0.0.1")
	h.s.SetLinkUp(h.nif)
	h.s.SetUp(h.nif)
	h.take()
	return h
}

func TestInputRefusedWhileDown(t *testing.T) {
	h := newHarness(t, 2, "10.0.2.99", "255.255.0.0", "")
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: broadcastMAC, EthernetType: layers.EthernetTypeIPv4}

	err := h.inject(t, eth, gopacket.Payload(make([]byte, 46)))
	assert.ErrorIs(t, err, ErrNetifDown)
	assert.Zero(t, h.s.Pool().InUse())
}

func TestInputRunt(t *testing.T) {
	h := upHarness(t, 2)
	p, err := h.s.Alloc(2 + 10)
	require.NoError(t, err)

	assert.ErrorIs(t, h.nif.Input(p), ErrBuf)
	p.Free()
}

func TestARPReply(t *testing.T) {
	for _, padding := range []int{0, 2} {
		h := upHarness(t, padding)

		req := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   peerMAC,
			SourceProtAddress: []byte{10, 0, 2, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 2, 99},
		}
		eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: broadcastMAC, EthernetType: layers.EthernetTypeARP}
		require.NoError(t, h.inject(t, eth, req))
		assert.Zero(t, h.s.Pool().InUse(), "input must release the frame")

		frames := h.take()
		require.Len(t, frames, 1)
		pkt := decode(frames[0])
		reply, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
		require.True(t, ok)
		assert.Equal(t, uint16(layers.ARPReply), reply.Operation)
		assert.Equal(t, []byte(h.nif.HardwareAddr()), reply.SourceHwAddress)
		assert.Equal(t, []byte(peerMAC), reply.DstHwAddress)

		mac, ok := h.nif.Neighbor(mustAddr("10.0.2.1"))
		require.True(t, ok)
		assert.Equal(t, peerMAC, mac)
	}
}

func TestForeignUnicastIgnored(t *testing.T) {
	h := upHarness(t, 0)
	req := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   peerMAC,
		SourceProtAddress: []byte{10, 0, 2, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 2, 99},
	}
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 9}, EthernetType: layers.EthernetTypeARP}

	require.NoError(t, h.inject(t, eth, req))
	assert.Empty(t, h.take())
}

func TestEchoReply(t *testing.T) {
	h := upHarness(t, 2)

	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: h.nif.HardwareAddr(), EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IP{10, 0, 2, 1},
		DstIP:    net.IP{10, 0, 2, 99},
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 7, Seq: 3}
	require.NoError(t, h.inject(t, eth, ip, icmp, gopacket.Payload("ping")))

	frames := h.take()
	require.Len(t, frames, 1)
	pkt := decode(frames[0])

	rip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, net.IP{10, 0, 2, 99}, rip.SrcIP.To4())
	assert.Equal(t, net.IP{10, 0, 2, 1}, rip.DstIP.To4())

	reply, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.True(t, ok)
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoReply), reply.TypeCode.Type())
	assert.Equal(t, uint16(7), reply.Id)
	assert.Equal(t, uint16(3), reply.Seq)
	assert.Equal(t, []byte("ping"), reply.Payload)
}

func TestIPOutputNeedsNeighbor(t *testing.T) {
	h := upHarness(t, 0)

	err := h.s.IPOutput(h.nif.Addr(), mustAddr("10.0.5.5"), layers.IPProtocolUDP, gopacket.Payload("x"))
	assert.ErrorIs(t, err, ErrRoute)

	frames := h.take()
	require.Len(t, frames, 1)
	arp, ok := decode(frames[0]).Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	assert.Equal(t, []byte{10, 0, 5, 5}, arp.DstProtAddress)
}
