package stack

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func autoipHarness(t *testing.T) *harness {
	h := newHarness(t, 0, "", "", "")
	h.s.SetLinkUp(h.nif)
	h.s.SetUp(h.nif)
	h.take()
	return h
}

func arpFrames(t *testing.T, frames [][]byte) []*layers.ARP {
	t.Helper()
	var out []*layers.ARP
	for _, f := range frames {
		if arp, ok := decode(f).Layer(layers.LayerTypeARP).(*layers.ARP); ok {
			out = append(out, arp)
		}
	}
	return out
}

func TestAutoIPCandidate(t *testing.T) {
	nif := &Netif{HWAddr: DefaultHWAddr, HWAddrLen: MaxHWAddrLen}
	assert.Equal(t, mustAddr("169.254.14.208"), autoipAddr(nif, 0))
	assert.Equal(t, mustAddr("169.254.14.209"), autoipAddr(nif, 1))

	nif.HWAddr[4], nif.HWAddr[5] = 0xff, 0xfd
	assert.Equal(t, mustAddr("169.254.254.255"), autoipAddr(nif, 0))
	assert.Equal(t, mustAddr("169.254.1.0"), autoipAddr(nif, 1))
}

func TestAutoIPClaim(t *testing.T) {
	h := autoipHarness(t)
	a := &AutoIP{}
	h.s.AutoIPSetStruct(h.nif, a)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	assert.False(t, h.nif.HasAddr())

	h.advance(3)
	probes := arpFrames(t, h.take())
	require.Len(t, probes, 3)
	for _, p := range probes {
		assert.Equal(t, []byte{0, 0, 0, 0}, p.SourceProtAddress)
		assert.Equal(t, []byte{169, 254, 14, 208}, p.DstProtAddress)
	}
	assert.False(t, h.nif.HasAddr(), "no address while probing")

	h.advance(2)
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
	assert.Equal(t, mustAddr("255.255.0.0"), h.nif.Netmask())
	assert.True(t, a.Bound())

	h.advance(2)
	announces := arpFrames(t, h.take())
	require.Len(t, announces, 2)
	assert.Equal(t, []byte{169, 254, 14, 208}, announces[1].SourceProtAddress)
	assert.Equal(t, "bound", a.State())

	h.s.AutoIPRemove(h.nif)
	assert.False(t, h.nif.HasAddr())
	assert.Nil(t, h.nif.autoip)
}

func TestAutoIPConflictWhileProbing(t *testing.T) {
	h := autoipHarness(t)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(1)

	reply := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   peerMAC,
		SourceProtAddress: []byte{169, 254, 14, 208},
		DstHwAddress:      h.nif.HardwareAddr(),
		DstProtAddress:    []byte{0, 0, 0, 0},
	}
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: h.nif.HardwareAddr(), EthernetType: layers.EthernetTypeARP}
	require.NoError(t, h.inject(t, eth, reply))
	assert.Equal(t, mustAddr("169.254.14.209"), h.nif.autoip.Candidate())

	h.take()
	h.advance(5)
	assert.Equal(t, mustAddr("169.254.14.209"), h.nif.Addr())
}

// claim injects a peer's gratuitous ARP for addr.
func claim(t *testing.T, h *harness, addr []byte) {
	t.Helper()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   peerMAC,
		SourceProtAddress: addr,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    addr,
	}
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EthernetType: layers.EthernetTypeARP}
	require.NoError(t, h.inject(t, eth, arp))
}

func TestAutoIPDefendsThenRetreats(t *testing.T) {
	h := autoipHarness(t)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(7)
	require.Equal(t, "bound", h.nif.autoip.State())
	h.take()

	var status int
	h.s.SetStatusCallback(h.nif, func(*Netif) { status++ })

	claim(t, h, []byte{169, 254, 14, 208})
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr(), "first conflict is defended")
	assert.Equal(t, "bound", h.nif.autoip.State())
	assert.Zero(t, status)
	defence := arpFrames(t, h.take())
	require.Len(t, defence, 1)
	assert.Equal(t, []byte{169, 254, 14, 208}, defence[0].SourceProtAddress)
	assert.Equal(t, []byte(h.nif.HardwareAddr()), defence[0].SourceHwAddress)

	h.advance(5)
	claim(t, h, []byte{169, 254, 14, 208})
	assert.False(t, h.nif.HasAddr(), "second conflict within the defend interval gives the address up")
	assert.Equal(t, 1, status)
	assert.Equal(t, "probing", h.nif.autoip.State())
	assert.Equal(t, mustAddr("169.254.14.209"), h.nif.autoip.Candidate())
}

func TestAutoIPDefendsAgainAfterInterval(t *testing.T) {
	h := autoipHarness(t)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(7)
	h.take()

	claim(t, h, []byte{169, 254, 14, 208})
	h.advance(10)
	claim(t, h, []byte{169, 254, 14, 208})

	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
	assert.Equal(t, "bound", h.nif.autoip.State())
	assert.Len(t, arpFrames(t, h.take()), 2)
}

func TestAutoIPWaitsForLink(t *testing.T) {
	h := newHarness(t, 0, "", "", "")
	h.s.SetUp(h.nif)
	a := &AutoIP{}
	h.s.AutoIPSetStruct(h.nif, a)

	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(10)
	assert.Empty(t, h.take())
	assert.False(t, h.nif.HasAddr(), "nothing is claimed without probing the wire")
	assert.Equal(t, "waiting", a.State())
	assert.False(t, a.Bound())

	h.s.SetLinkUp(h.nif)
	h.advance(3)
	assert.Len(t, arpFrames(t, h.take()), 3)
	h.advance(2)
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
}

func TestAutoIPLinkLostWhileProbing(t *testing.T) {
	h := autoipHarness(t)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(2)
	require.Len(t, arpFrames(t, h.take()), 2)

	h.s.SetLinkDown(h.nif)
	h.advance(10)
	assert.False(t, h.nif.HasAddr())
	assert.Equal(t, "waiting", h.nif.autoip.State())

	// probing starts over once the carrier returns
	h.s.SetLinkUp(h.nif)
	h.advance(3)
	assert.Len(t, arpFrames(t, h.take()), 3)
	h.advance(2)
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
}

func TestAutoIPReprobeDropsHeldAddress(t *testing.T) {
	h := autoipHarness(t)
	require.NoError(t, h.s.AutoIPStart(h.nif))
	h.advance(7)
	require.Equal(t, "bound", h.nif.autoip.State())

	// a bound address survives link loss and is re-checked on return
	h.s.SetLinkDown(h.nif)
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
	h.s.SetLinkUp(h.nif)
	assert.False(t, h.nif.HasAddr())
	assert.Equal(t, "probing", h.nif.autoip.State())

	h.advance(5)
	assert.Equal(t, mustAddr("169.254.14.208"), h.nif.Addr())
}
