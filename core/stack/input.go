package stack

import (
	"bytes"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const ethHeaderLen = 14

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EthernetInput is the receive hook for Ethernet interfaces. Frames are
// refused while the interface is administratively down.
func (s *Local) EthernetInput(p *Pbuf, nif *Netif) error {
	if !nif.IsUp() {
		return errors.Wrapf(ErrNetifDown, "input on %s", nif)
	}
	if p.Len()-s.opts.Padding < ethHeaderLen {
		return errors.Wrapf(ErrBuf, "runt frame of %d bytes on %s", p.Len(), nif)
	}
	if err := p.Header(-s.opts.Padding); err != nil {
		return err
	}

	// from here on the frame is ours
	data := p.Bytes()
	p.Free()

	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil
	}
	if !bytes.Equal(eth.DstMAC, nif.HWAddr[:nif.HWAddrLen]) && !isBroadcastOrMulticast(eth.DstMAC) {
		return nil
	}

	switch eth.EthernetType {
	case layers.EthernetTypeARP:
		if arp, ok := packet.Layer(layers.LayerTypeARP).(*layers.ARP); ok {
			s.arpInput(nif, arp)
		}
	case layers.EthernetTypeIPv4:
		s.ipInput(nif, eth, packet)
	}
	return nil
}

func isBroadcastOrMulticast(mac net.HardwareAddr) bool {
	return len(mac) > 0 && mac[0]&0x01 != 0
}

func addrFrom(b []byte) netip.Addr {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func (s *Local) learn(nif *Netif, ip netip.Addr, mac net.HardwareAddr) {
	if isZero(ip) || !nif.onLink(ip) || isBroadcastOrMulticast(mac) {
		return
	}
	nif.arp[ip] = append(net.HardwareAddr(nil), mac...)
}

func (s *Local) arpInput(nif *Netif, arp *layers.ARP) {
	sender := addrFrom(arp.SourceProtAddress)
	target := addrFrom(arp.DstProtAddress)
	senderMAC := net.HardwareAddr(arp.SourceHwAddress)

	s.learn(nif, sender, senderMAC)

	if nif.autoip != nil && s.autoipConflict(nif, sender, target, senderMAC) {
		return
	}

	if arp.Operation == layers.ARPRequest && nif.HasAddr() && target == nif.addr {
		reply := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPReply,
			SourceHwAddress:   nif.HardwareAddr(),
			SourceProtAddress: nif.addr.AsSlice(),
			DstHwAddress:      senderMAC,
			DstProtAddress:    sender.AsSlice(),
		}
		if err := s.ethOutput(nif, senderMAC, layers.EthernetTypeARP, reply); err != nil {
			s.log.Debugf("netif %s: arp reply to %s: %v", nif, sender, err)
		}
	}
}

func (s *Local) ipInput(nif *Netif, eth *layers.Ethernet, packet gopacket.Packet) {
	ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return
	}
	src := addrFrom(ip.SrcIP)
	dst := addrFrom(ip.DstIP)
	s.learn(nif, src, eth.SrcMAC)

	if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		if udp.DstPort == dhcpClientPort && nif.dhcp != nil {
			s.dhcpInput(nif, eth, udp.Payload)
		}
		return
	}

	if !nif.HasAddr() || dst != nif.addr {
		return
	}
	icmp, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok || icmp.TypeCode.Type() != layers.ICMPv4TypeEchoRequest {
		return
	}

	reply := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       icmp.Id,
		Seq:      icmp.Seq,
	}
	if err := s.IPOutput(dst, src, layers.IPProtocolICMPv4, reply, gopacket.Payload(icmp.Payload)); err != nil {
		s.log.Debugf("netif %s: echo reply to %s: %v", nif, src, err)
	}
}

// IPOutput routes an IPv4 datagram from src to dst. The next hop must
// already be in the ARP cache; otherwise a request is sent and the
// datagram is dropped with ErrRoute.
func (s *Local) IPOutput(src, dst netip.Addr, proto layers.IPProtocol, l ...gopacket.SerializableLayer) error {
	nif, err := s.Route(dst)
	if err != nil {
		return err
	}

	hop := dst
	if !nif.onLink(dst) {
		hop = nif.gw
	}
	mac, ok := nif.Neighbor(hop)
	if !ok {
		s.arpRequest(nif, hop)
		return errors.Wrapf(ErrRoute, "no arp entry for %s on %s", hop, nif)
	}

	s.ipID++
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       s.ipID,
		Protocol: proto,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	return s.ethOutput(nif, mac, layers.EthernetTypeIPv4, append([]gopacket.SerializableLayer{ip}, l...)...)
}

func (s *Local) arpRequest(nif *Netif, target netip.Addr) {
	if isZero(target) {
		return
	}
	req := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   nif.HardwareAddr(),
		SourceProtAddress: nif.addr.AsSlice(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target.AsSlice(),
	}
	if err := s.ethOutput(nif, broadcastMAC, layers.EthernetTypeARP, req); err != nil {
		s.log.Debugf("netif %s: arp request for %s: %v", nif, target, err)
	}
}

// announce sends a gratuitous ARP for the current address of nif.
func (s *Local) announce(nif *Netif) {
	s.gratuitous(nif, nif.addr)
}

func (s *Local) gratuitous(nif *Netif, addr netip.Addr) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   nif.HardwareAddr(),
		SourceProtAddress: addr.AsSlice(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    addr.AsSlice(),
	}
	if err := s.ethOutput(nif, broadcastMAC, layers.EthernetTypeARP, arp); err != nil {
		s.log.Debugf("netif %s: gratuitous arp: %v", nif, err)
	}
}

// Announce sends a gratuitous ARP so neighbours refresh their caches.
func (s *Local) Announce(nif *Netif) error {
	if !nif.HasAddr() {
		return errors.Wrapf(ErrArg, "netif %s has no address", nif)
	}
	s.announce(nif)
	return nil
}

// ethOutput serializes the layers behind an Ethernet header and hands
// the frame to the interface's link output.
func (s *Local) ethOutput(nif *Netif, dst net.HardwareAddr, ethType layers.EthernetType, l ...gopacket.SerializableLayer) error {
	if !nif.IsLinkUp() {
		return errors.Wrapf(ErrNetifDown, "link of %s is down", nif)
	}
	if nif.LinkOutput == nil {
		return errors.Wrapf(ErrIf, "netif %s has no link output", nif)
	}

	eth := &layers.Ethernet{
		SrcMAC:       nif.HardwareAddr(),
		DstMAC:       dst,
		EthernetType: ethType,
	}
	buf := s.serialize.Get()
	defer s.serialize.Put(buf)
	if err := buf.Clear(); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, append([]gopacket.SerializableLayer{eth}, l...)...); err != nil {
		return errors.Wrap(err, "serialize frame")
	}
	frame := buf.Bytes()

	p, err := s.Alloc(len(frame) + s.opts.Padding)
	if err != nil {
		return err
	}
	defer p.Free()

	if err := p.Header(-s.opts.Padding); err != nil {
		return err
	}
	if err := p.Take(frame); err != nil {
		return err
	}
	if err := p.Header(s.opts.Padding); err != nil {
		return err
	}
	return nif.LinkOutput(nif, p)
}
