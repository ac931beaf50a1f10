package stack

import (
	"net"
	"net/netip"

	"github.com/benbjohnson/clock"
	"github.com/google/gopacket"
	"github.com/pkg/errors"

	"github.com/wlynxg/EtherHive/core/route"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
	"github.com/wlynxg/EtherHive/pkgs/xpool"
)

// DefaultHWAddr is given to interfaces whose configuration does not name
// a hardware address.
var DefaultHWAddr = [MaxHWAddrLen]byte{0x00, 0x23, 0xC1, 0xDE, 0xD0, 0x0D}

type Options struct {
	// Padding bytes in front of every frame buffer (ETH_PAD_SIZE).
	Padding  int
	PoolSize int
	BufSize  int
	IGMP     bool
	HWAddr   [MaxHWAddrLen]byte
	Clock    clock.Clock
	Logger   *mlog.Logger
}

// Local is a small single-threaded IPv4 stack: buffer pool, interface
// list, timers, ARP, ICMP echo and the DHCP/AutoIP clients. It is not
// safe for concurrent use; all calls must come from one context.
type Local struct {
	log    *mlog.Logger
	opts   Options
	clock  clock.Clock
	pool   *Pool
	netifs []*Netif
	routes *route.Table[*Netif]
	timers timers
	ipID   uint16

	// scratch for outgoing frames before they are copied into a Pbuf
	serialize *xpool.Pool[gopacket.SerializeBuffer]

	// client generations are unique across the stack, so a client
	// struct reused in place never matches a stale timeout
	gen uint64
}

func New(opts Options) *Local {
	if opts.PoolSize == 0 {
		opts.PoolSize = 16
	}
	if opts.BufSize == 0 {
		opts.BufSize = 1536
	}
	if opts.HWAddr == [MaxHWAddrLen]byte{} {
		opts.HWAddr = DefaultHWAddr
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = mlog.New("stack")
	}

	s := &Local{
		log:    opts.Logger,
		opts:   opts,
		clock:  opts.Clock,
		pool:   NewPool(opts.PoolSize, opts.BufSize),
		routes: route.New[*Netif](),
	}
	s.serialize = xpool.New(func() gopacket.SerializeBuffer {
		return gopacket.NewSerializeBuffer()
	})
	return s
}

func (s *Local) nextGen() uint64 {
	s.gen++
	return s.gen
}

func (s *Local) Padding() int { return s.opts.Padding }

func (s *Local) HasIGMP() bool { return s.opts.IGMP }

func (s *Local) Pool() *Pool { return s.pool }

// Alloc takes a buffer of length bytes from the pool.
func (s *Local) Alloc(length int) (*Pbuf, error) {
	return s.pool.Alloc(length)
}

// Add registers nif. The attach callback runs before the interface is
// listed; if it fails the interface is not added.
func (s *Local) Add(nif *Netif, addr, netmask, gw netip.Addr, attach AttachFunc, input InputFunc) error {
	if nif == nil || attach == nil || input == nil {
		return errors.Wrap(ErrArg, "netif add")
	}
	for _, n := range s.netifs {
		if n == nif {
			return errors.Wrapf(ErrArg, "netif %s already added", nif)
		}
	}

	nif.Flags = 0
	nif.MTU = 0
	nif.HWAddr = s.opts.HWAddr
	nif.HWAddrLen = MaxHWAddrLen
	nif.input = input
	nif.arp = make(map[netip.Addr]net.HardwareAddr)
	nif.addr, nif.netmask, nif.gw = addr, netmask, gw

	if err := attach(nif); err != nil {
		return errors.Wrap(err, "netif attach")
	}

	s.netifs = append(s.netifs, nif)
	s.updateRoute(nif)
	s.log.Debugf("netif %s added: addr=%s mask=%s gw=%s mac=%s", nif, addr, netmask, gw, nif.HardwareAddr())
	return nil
}

// Remove takes nif down and drops it from the stack.
func (s *Local) Remove(nif *Netif) {
	idx := -1
	for i, n := range s.netifs {
		if n == nif {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	if nif.IsUp() {
		s.SetDown(nif)
	}
	s.netifs = append(s.netifs[:idx], s.netifs[idx+1:]...)
	s.routes.Remove(nif)
	s.routes.ClearDefault(nif)
	nif.input = nil
	nif.arp = nil
	s.log.Debugf("netif %s removed", nif)
}

// Netifs lists registered interfaces.
func (s *Local) Netifs() []*Netif {
	return append([]*Netif(nil), s.netifs...)
}

func (s *Local) SetDefault(nif *Netif) {
	s.routes.SetDefault(nif)
}

func (s *Local) Default() *Netif {
	nif, _ := s.routes.Default()
	return nif
}

func (s *Local) SetStatusCallback(nif *Netif, fn CallbackFunc) { nif.status = fn }

func (s *Local) SetLinkCallback(nif *Netif, fn CallbackFunc) { nif.link = fn }

func (s *Local) SetUp(nif *Netif) {
	if nif.IsUp() {
		return
	}
	nif.Flags |= FlagUp
	if nif.status != nil {
		nif.status(nif)
	}
	if nif.IsLinkUp() && nif.HasAddr() {
		s.announce(nif)
	}
}

func (s *Local) SetDown(nif *Netif) {
	if !nif.IsUp() {
		return
	}
	nif.Flags &^= FlagUp
	if nif.status != nil {
		nif.status(nif)
	}
}

func (s *Local) SetLinkUp(nif *Netif) {
	if nif.IsLinkUp() {
		return
	}
	nif.Flags |= FlagLinkUp
	if nif.link != nil {
		nif.link(nif)
	}
	s.dhcpNetworkChanged(nif)
	s.autoipNetworkChanged(nif)
	if nif.IsUp() && nif.HasAddr() {
		s.announce(nif)
	}
}

func (s *Local) SetLinkDown(nif *Netif) {
	if !nif.IsLinkUp() {
		return
	}
	nif.Flags &^= FlagLinkUp
	if nif.link != nil {
		nif.link(nif)
	}
	s.autoipLinkDown(nif)
}

// SetAddr replaces the IPv4 configuration of nif and notifies the status
// callback when the interface is up and something changed.
func (s *Local) SetAddr(nif *Netif, addr, netmask, gw netip.Addr) {
	changed := addr != nif.addr || netmask != nif.netmask || gw != nif.gw
	nif.addr, nif.netmask, nif.gw = addr, netmask, gw
	s.updateRoute(nif)

	if changed && nif.IsUp() && nif.status != nil {
		nif.status(nif)
	}
}

// Route picks the outbound interface for dst.
func (s *Local) Route(dst netip.Addr) (*Netif, error) {
	nif, ok := s.routes.Lookup(dst)
	if !ok || nif == nil {
		return nil, errors.Wrapf(ErrRoute, "route %s", dst)
	}
	if !nif.IsUp() || !nif.IsLinkUp() {
		return nil, errors.Wrapf(ErrNetifDown, "route %s via %s", dst, nif)
	}
	return nif, nil
}

func (s *Local) updateRoute(nif *Netif) {
	prefix, ok := nif.Prefix()
	if !ok {
		s.routes.Remove(nif)
		return
	}
	if err := s.routes.Set(nif, prefix); err != nil {
		s.log.Warnf("netif %s: %v", nif, err)
	}
}
