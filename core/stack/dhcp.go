package stack

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/pkg/errors"
)

const (
	dhcpClientPort layers.UDPPort = 68
	dhcpServerPort layers.UDPPort = 67

	// DHCPAutoIPCoopTries is the number of unanswered DISCOVERs after
	// which a cooperating AutoIP client is started.
	DHCPAutoIPCoopTries = 9

	dhcpRequestTries  = 4
	dhcpDefaultLease  = time.Hour
	dhcpMaxBackoff    = 60 * time.Second
	dhcpRequestPeriod = 2 * time.Second
)

type dhcpState uint8

const (
	dhcpOff dhcpState = iota
	dhcpInit
	dhcpSelecting
	dhcpRequesting
	dhcpBound
	dhcpRenewing
)

func (s dhcpState) String() string {
	switch s {
	case dhcpOff:
		return "off"
	case dhcpInit:
		return "init"
	case dhcpSelecting:
		return "selecting"
	case dhcpRequesting:
		return "requesting"
	case dhcpBound:
		return "bound"
	case dhcpRenewing:
		return "renewing"
	default:
		return "unknown"
	}
}

// DHCP is the client state of one interface. The zero value is an idle
// client; the owner keeps it alive while it is set on an interface.
type DHCP struct {
	// AutoIPFallback starts AutoIP after DHCPAutoIPCoopTries unanswered
	// DISCOVERs and stops it again when a lease arrives.
	AutoIPFallback bool

	state      dhcpState
	gen        uint64
	tries      int
	xid        dhcpv4.TransactionID
	offer      *dhcpv4.DHCPv4
	lease      *dhcpv4.DHCPv4
	serverMAC  net.HardwareAddr
	autoipCoop bool
}

// Bound reports whether a lease is held.
func (d *DHCP) Bound() bool {
	return d.state == dhcpBound || d.state == dhcpRenewing
}

func (d *DHCP) State() string {
	return d.state.String()
}

// DHCPSetStruct binds caller-owned client state to nif.
func (s *Local) DHCPSetStruct(nif *Netif, d *DHCP) {
	nif.dhcp = d
}

// DHCPStart starts (or restarts) lease acquisition. With the link down
// the client waits in init until the link comes up.
func (s *Local) DHCPStart(nif *Netif) error {
	if nif.Flags&FlagEthernet == 0 || nif.HWAddrLen != MaxHWAddrLen {
		return errors.Wrapf(ErrArg, "dhcp on %s needs an ethernet interface", nif)
	}
	if nif.dhcp == nil {
		nif.dhcp = &DHCP{}
	}
	d := nif.dhcp
	d.gen = s.nextGen()
	d.tries = 0
	d.offer, d.lease, d.serverMAC = nil, nil, nil

	if !nif.IsLinkUp() {
		d.state = dhcpInit
		return nil
	}
	return s.dhcpDiscover(nif)
}

// DHCPCleanup stops the client, releases a held lease and unbinds the
// client state from nif.
func (s *Local) DHCPCleanup(nif *Netif) {
	d := nif.dhcp
	if d == nil {
		return
	}
	if d.Bound() {
		s.dhcpRelease(nif)
		s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
	}
	if d.autoipCoop {
		s.autoipStop(nif)
		d.autoipCoop = false
	}
	d.gen = s.nextGen()
	d.state = dhcpOff
	nif.dhcp = nil
}

func (s *Local) dhcpNetworkChanged(nif *Netif) {
	d := nif.dhcp
	if d == nil {
		return
	}
	switch d.state {
	case dhcpOff:
	case dhcpBound, dhcpRenewing:
		s.dhcpRenew(nif)
	default:
		d.gen = s.nextGen()
		d.tries = 0
		if err := s.dhcpDiscover(nif); err != nil {
			s.log.Warnf("netif %s: dhcp discover: %v", nif, err)
		}
	}
}

func (s *Local) dhcpDiscover(nif *Netif) error {
	d := nif.dhcp
	d.state = dhcpSelecting
	d.tries++

	msg, err := dhcpv4.NewDiscovery(nif.HardwareAddr(), s.dhcpModifiers(nif)...)
	if err != nil {
		return errors.Wrap(err, "build dhcp discover")
	}
	d.xid = msg.TransactionID
	if err := s.dhcpSend(nif, broadcastMAC, msg); err != nil {
		return err
	}
	s.log.Debugf("netif %s: dhcp discover #%d xid=%s", nif, d.tries, d.xid)

	backoff := dhcpMaxBackoff
	if d.tries < 6 {
		backoff = time.Duration(1<<d.tries) * time.Second
	}
	gen := d.gen
	s.Timeout(backoff, func() {
		if nif.dhcp != d || d.gen != gen || d.state != dhcpSelecting {
			return
		}
		if d.AutoIPFallback && !d.autoipCoop && d.tries >= DHCPAutoIPCoopTries {
			s.log.Infof("netif %s: no dhcp offer after %d tries, starting autoip", nif, d.tries)
			if nif.autoip == nil {
				nif.autoip = &AutoIP{}
			}
			if err := s.AutoIPStart(nif); err != nil {
				s.log.Warnf("netif %s: autoip fallback: %v", nif, err)
			} else {
				d.autoipCoop = true
			}
		}
		if err := s.dhcpDiscover(nif); err != nil {
			s.log.Warnf("netif %s: dhcp discover: %v", nif, err)
		}
	})
	return nil
}

func (s *Local) dhcpRequest(nif *Netif, from *dhcpv4.DHCPv4) error {
	msg, err := dhcpv4.NewRequestFromOffer(from, s.dhcpModifiers(nif)...)
	if err != nil {
		return errors.Wrap(err, "build dhcp request")
	}
	return s.dhcpSend(nif, broadcastMAC, msg)
}

func (s *Local) dhcpSelect(nif *Netif) {
	d := nif.dhcp
	d.state = dhcpRequesting
	d.tries = 0
	gen := d.gen

	var retry func()
	retry = func() {
		if nif.dhcp != d || d.gen != gen || d.state != dhcpRequesting {
			return
		}
		if d.tries >= dhcpRequestTries {
			d.tries = 0
			if err := s.dhcpDiscover(nif); err != nil {
				s.log.Warnf("netif %s: dhcp discover: %v", nif, err)
			}
			return
		}
		d.tries++
		if err := s.dhcpRequest(nif, d.offer); err != nil {
			s.log.Warnf("netif %s: dhcp request: %v", nif, err)
		}
		s.Timeout(dhcpRequestPeriod, retry)
	}
	retry()
}

func (s *Local) dhcpRenew(nif *Netif) {
	d := nif.dhcp
	d.state = dhcpRenewing
	if err := s.dhcpRequest(nif, d.lease); err != nil {
		s.log.Warnf("netif %s: dhcp renew: %v", nif, err)
	}
}

func (s *Local) dhcpRelease(nif *Netif) {
	d := nif.dhcp
	msg, err := dhcpv4.NewReleaseFromACK(d.lease)
	if err != nil {
		s.log.Warnf("netif %s: build dhcp release: %v", nif, err)
		return
	}
	dst := d.serverMAC
	if dst == nil {
		dst = broadcastMAC
	}
	if err := s.dhcpSend(nif, dst, msg); err != nil {
		s.log.Debugf("netif %s: dhcp release: %v", nif, err)
	}
}

func (s *Local) dhcpModifiers(nif *Netif) []dhcpv4.Modifier {
	if nif.Hostname == "" {
		return nil
	}
	return []dhcpv4.Modifier{dhcpv4.WithOption(dhcpv4.OptHostName(nif.Hostname))}
}

func (s *Local) dhcpSend(nif *Netif, dst net.HardwareAddr, msg *dhcpv4.DHCPv4) error {
	src := netip.IPv4Unspecified()
	dstIP := netip.AddrFrom4([4]byte{255, 255, 255, 255})
	if msg.MessageType() == dhcpv4.MessageTypeRelease && nif.HasAddr() {
		src = nif.addr
		if ip, ok := netip.AddrFromSlice(msg.ServerIdentifier().To4()); ok {
			dstIP = ip
		}
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.AsSlice(),
		DstIP:    dstIP.AsSlice(),
	}
	udp := &layers.UDP{SrcPort: dhcpClientPort, DstPort: dhcpServerPort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return errors.Wrap(err, "dhcp checksum")
	}
	return s.ethOutput(nif, dst, layers.EthernetTypeIPv4, ip, udp, gopacket.Payload(msg.ToBytes()))
}

func (s *Local) dhcpInput(nif *Netif, eth *layers.Ethernet, payload []byte) {
	d := nif.dhcp
	if d.state == dhcpOff || d.state == dhcpInit {
		return
	}

	msg, err := dhcpv4.FromBytes(payload)
	if err != nil {
		s.log.Debugf("netif %s: malformed dhcp message: %v", nif, err)
		return
	}
	if msg.OpCode != dhcpv4.OpcodeBootReply || msg.TransactionID != d.xid {
		return
	}

	switch msg.MessageType() {
	case dhcpv4.MessageTypeOffer:
		if d.state != dhcpSelecting {
			return
		}
		s.log.Debugf("netif %s: dhcp offer %s from %s", nif, msg.YourIPAddr, msg.ServerIdentifier())
		d.offer = msg
		d.gen = s.nextGen()
		s.dhcpSelect(nif)
	case dhcpv4.MessageTypeAck:
		if d.state != dhcpRequesting && d.state != dhcpRenewing {
			return
		}
		d.serverMAC = append(net.HardwareAddr(nil), eth.SrcMAC...)
		s.dhcpBind(nif, msg)
	case dhcpv4.MessageTypeNak:
		s.log.Infof("netif %s: dhcp nak from %s", nif, msg.ServerIdentifier())
		if d.Bound() {
			s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
		}
		d.gen = s.nextGen()
		d.tries = 0
		if err := s.dhcpDiscover(nif); err != nil {
			s.log.Warnf("netif %s: dhcp discover: %v", nif, err)
		}
	}
}

func (s *Local) dhcpBind(nif *Netif, ack *dhcpv4.DHCPv4) {
	d := nif.dhcp
	addr, ok := netip.AddrFromSlice(ack.YourIPAddr.To4())
	if !ok {
		s.log.Warnf("netif %s: dhcp ack without address", nif)
		return
	}

	mask := ack.SubnetMask()
	if mask == nil {
		mask = net.IP(addr.AsSlice()).DefaultMask()
	}
	netmask, _ := netip.AddrFromSlice(net.IP(mask).To4())

	gw := netip.IPv4Unspecified()
	if routers := ack.Router(); len(routers) > 0 {
		if r, ok := netip.AddrFromSlice(routers[0].To4()); ok {
			gw = r
		}
	}

	d.gen = s.nextGen()
	d.lease = ack
	d.state = dhcpBound
	d.tries = 0
	if d.autoipCoop {
		s.autoipStop(nif)
		d.autoipCoop = false
	}

	lease := ack.IPAddressLeaseTime(dhcpDefaultLease)
	s.log.Infof("netif %s: dhcp bound %s/%s gw %s lease %s", nif, addr, netmask, gw, lease)
	s.SetAddr(nif, addr, netmask, gw)

	gen := d.gen
	s.Timeout(lease/2, func() {
		if nif.dhcp != d || d.gen != gen {
			return
		}
		s.dhcpRenew(nif)
	})
	s.Timeout(lease, func() {
		if nif.dhcp != d || d.gen != gen {
			return
		}
		s.log.Warnf("netif %s: dhcp lease on %s expired", nif, addr)
		s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
		d.gen = s.nextGen()
		d.tries = 0
		if err := s.dhcpDiscover(nif); err != nil {
			s.log.Warnf("netif %s: dhcp discover: %v", nif, err)
		}
	})
}
