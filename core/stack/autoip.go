package stack

import (
	"encoding/binary"
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// RFC 3927 timing, without the random part of the waits.
const (
	autoipProbeWait        = 1 * time.Second
	autoipProbeNum         = 3
	autoipProbeInterval    = 1 * time.Second
	autoipAnnounceWait     = 2 * time.Second
	autoipAnnounceNum      = 2
	autoipAnnounceInterval = 2 * time.Second
	autoipDefendInterval   = 10 * time.Second

	autoipRangeStart = 0xA9FE0100 // 169.254.1.0
	autoipRangeEnd   = 0xA9FEFEFF // 169.254.254.255
)

var linkLocal = netip.MustParsePrefix("169.254.0.0/16")

type autoipState uint8

const (
	autoipOff autoipState = iota
	autoipWaiting
	autoipProbing
	autoipAnnouncing
	autoipBound
)

func (s autoipState) String() string {
	switch s {
	case autoipOff:
		return "off"
	case autoipWaiting:
		return "waiting"
	case autoipProbing:
		return "probing"
	case autoipAnnouncing:
		return "announcing"
	case autoipBound:
		return "bound"
	default:
		return "unknown"
	}
}

// AutoIP is the link-local address client state of one interface.
type AutoIP struct {
	state     autoipState
	gen       uint64
	tried     uint32
	sent      int
	candidate netip.Addr
	// last time a conflict on the held address was defended
	defended time.Time
}

func (a *AutoIP) Bound() bool {
	return a.state == autoipBound || a.state == autoipAnnouncing
}

func (a *AutoIP) State() string {
	return a.state.String()
}

// Candidate is the address currently being probed or held.
func (a *AutoIP) Candidate() netip.Addr {
	return a.candidate
}

func (s *Local) AutoIPSetStruct(nif *Netif, a *AutoIP) {
	nif.autoip = a
}

// AutoIPStart begins probing for a link-local address derived from the
// interface's hardware address. With the link down the client waits and
// probes once the link comes up.
func (s *Local) AutoIPStart(nif *Netif) error {
	if nif.Flags&FlagEthernet == 0 || nif.HWAddrLen != MaxHWAddrLen {
		return errors.Wrapf(ErrArg, "autoip on %s needs an ethernet interface", nif)
	}
	if nif.autoip == nil {
		nif.autoip = &AutoIP{}
	}
	a := nif.autoip
	a.candidate = autoipAddr(nif, a.tried)
	if !nif.IsLinkUp() {
		s.autoipWait(nif)
		return nil
	}
	s.autoipProbe(nif, autoipProbeWait)
	return nil
}

// AutoIPStop stops probing and drops a claimed link-local address. The
// client state stays bound to nif.
func (s *Local) AutoIPStop(nif *Netif) {
	s.autoipStop(nif)
}

// AutoIPRemove stops the client and unbinds its state from nif.
func (s *Local) AutoIPRemove(nif *Netif) {
	if nif.autoip == nil {
		return
	}
	s.autoipStop(nif)
	nif.autoip = nil
}

func (s *Local) autoipStop(nif *Netif) {
	a := nif.autoip
	if a == nil {
		return
	}
	a.gen = s.nextGen()
	a.state = autoipOff
	if linkLocal.Contains(nif.addr) {
		s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
	}
}

func (s *Local) autoipNetworkChanged(nif *Netif) {
	a := nif.autoip
	if a == nil || a.state == autoipOff {
		return
	}
	s.autoipProbe(nif, autoipProbeWait)
}

// autoipLinkDown parks a client that is still probing. A claimed
// address is kept and re-probed when the link returns.
func (s *Local) autoipLinkDown(nif *Netif) {
	a := nif.autoip
	if a == nil || a.state == autoipOff || a.Bound() {
		return
	}
	s.autoipWait(nif)
}

func (s *Local) autoipWait(nif *Netif) {
	a := nif.autoip
	a.gen = s.nextGen()
	a.state = autoipWaiting
	a.sent = 0
	s.log.Debugf("netif %s: autoip waiting for link", nif)
}

// autoipAddr picks the tried-th candidate in 169.254.1.0 - 169.254.254.255,
// seeded by the last two bytes of the hardware address.
func autoipAddr(nif *Netif, tried uint32) netip.Addr {
	seed := uint32(nif.HWAddr[4]) | uint32(nif.HWAddr[5])<<8
	span := uint32(autoipRangeEnd - autoipRangeStart + 1)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], autoipRangeStart+(seed+tried)%span)
	return netip.AddrFrom4(b)
}

func (s *Local) autoipProbe(nif *Netif, wait time.Duration) {
	a := nif.autoip
	a.gen = s.nextGen()
	a.state = autoipProbing
	a.sent = 0
	a.defended = time.Time{}
	gen := a.gen
	if linkLocal.Contains(nif.addr) {
		s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
	}

	var step func()
	step = func() {
		if nif.autoip != a || a.gen != gen {
			return
		}
		switch a.state {
		case autoipProbing:
			if a.sent < autoipProbeNum {
				a.sent++
				s.autoipSendProbe(nif, a.candidate)
				wait := autoipProbeInterval
				if a.sent == autoipProbeNum {
					wait = autoipAnnounceWait
				}
				s.Timeout(wait, step)
				return
			}
			a.state = autoipAnnouncing
			a.sent = 0
			s.log.Infof("netif %s: autoip claimed %s", nif, a.candidate)
			s.SetAddr(nif, a.candidate, netip.AddrFrom4([4]byte{255, 255, 0, 0}), netip.IPv4Unspecified())
			fallthrough
		case autoipAnnouncing:
			a.sent++
			s.gratuitous(nif, a.candidate)
			if a.sent >= autoipAnnounceNum {
				a.state = autoipBound
				return
			}
			s.Timeout(autoipAnnounceInterval, step)
		}
	}
	s.Timeout(wait, step)
}

func (s *Local) autoipSendProbe(nif *Netif, candidate netip.Addr) {
	saved := nif.addr
	nif.addr = netip.IPv4Unspecified()
	s.arpRequest(nif, candidate)
	nif.addr = saved
}

// autoipConflict inspects an incoming ARP packet for a clash with the
// address being probed or held. A held address is defended once per
// autoipDefendInterval; any other clash moves to the next candidate. It
// reports whether the packet was a conflict.
func (s *Local) autoipConflict(nif *Netif, sender, target netip.Addr, senderMAC net.HardwareAddr) bool {
	a := nif.autoip
	if a.state == autoipOff || a.state == autoipWaiting || bytesEqual(senderMAC, nif.HWAddr[:nif.HWAddrLen]) {
		return false
	}

	conflict := sender == a.candidate
	if a.state == autoipProbing && isZero(sender) && target == a.candidate {
		// someone else is probing for the same address
		conflict = true
	}
	if !conflict {
		return false
	}

	if a.Bound() {
		now := s.clock.Now()
		if a.defended.IsZero() || now.Sub(a.defended) >= autoipDefendInterval {
			a.defended = now
			s.log.Warnf("netif %s: autoip defending %s against %s", nif, a.candidate, senderMAC)
			s.gratuitous(nif, a.candidate)
			return true
		}
	}

	s.log.Warnf("netif %s: autoip conflict on %s with %s", nif, a.candidate, senderMAC)
	if a.Bound() {
		s.SetAddr(nif, netip.IPv4Unspecified(), netip.IPv4Unspecified(), netip.IPv4Unspecified())
	}
	a.tried++
	a.candidate = autoipAddr(nif, a.tried)
	s.autoipProbe(nif, autoipProbeWait)
	return true
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}
