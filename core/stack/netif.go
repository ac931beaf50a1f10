package stack

import (
	"net"
	"net/netip"
)

const (
	MaxHWAddrLen = 6
	DefaultMTU   = 1500
)

type Flags uint8

const (
	FlagUp Flags = 1 << iota
	FlagBroadcast
	FlagLinkUp
	FlagEtharp
	FlagEthernet
	FlagIGMP
)

type (
	// AttachFunc initialises a freshly added interface. It is called by
	// the stack while the interface is being registered.
	AttachFunc func(nif *Netif) error
	// InputFunc hands a received frame to the stack. On success the stack
	// owns p, on error the caller still does.
	InputFunc func(p *Pbuf, nif *Netif) error
	// LinkOutputFunc puts a frame on the wire. p stays owned by the caller.
	LinkOutputFunc func(nif *Netif, p *Pbuf) error
	CallbackFunc   func(nif *Netif)
)

// Netif is the stack side of a network interface.
type Netif struct {
	Name      [2]byte
	HWAddr    [MaxHWAddrLen]byte
	HWAddrLen uint8
	MTU       uint16
	Flags     Flags
	Hostname  string
	// LinkOutput is set by the attach callback.
	LinkOutput LinkOutputFunc
	// State is opaque per-interface driver data.
	State any

	addr    netip.Addr
	netmask netip.Addr
	gw      netip.Addr
	input   InputFunc
	status  CallbackFunc
	link    CallbackFunc
	dhcp    *DHCP
	autoip  *AutoIP
	arp     map[netip.Addr]net.HardwareAddr
}

func (n *Netif) String() string {
	return string(n.Name[:])
}

func (n *Netif) Addr() netip.Addr    { return n.addr }
func (n *Netif) Netmask() netip.Addr { return n.netmask }
func (n *Netif) Gateway() netip.Addr { return n.gw }

func (n *Netif) IsUp() bool     { return n.Flags&FlagUp != 0 }
func (n *Netif) IsLinkUp() bool { return n.Flags&FlagLinkUp != 0 }

// HasAddr reports whether a non-zero IPv4 address is configured.
func (n *Netif) HasAddr() bool {
	return !isZero(n.addr)
}

func (n *Netif) HardwareAddr() net.HardwareAddr {
	return append(net.HardwareAddr(nil), n.HWAddr[:n.HWAddrLen]...)
}

// Input hands p to the stack through the registered receive hook.
func (n *Netif) Input(p *Pbuf) error {
	if n.input == nil {
		return ErrIf
	}
	return n.input(p, n)
}

// Neighbor looks up the ARP cache.
func (n *Netif) Neighbor(ip netip.Addr) (net.HardwareAddr, bool) {
	mac, ok := n.arp[ip]
	return mac, ok
}

// Prefix is the on-link subnet of the interface.
func (n *Netif) Prefix() (netip.Prefix, bool) {
	if isZero(n.addr) || !n.netmask.IsValid() {
		return netip.Prefix{}, false
	}
	ones, _ := net.IPMask(n.netmask.AsSlice()).Size()
	prefix, err := n.addr.Prefix(ones)
	return prefix, err == nil
}

func (n *Netif) onLink(ip netip.Addr) bool {
	prefix, ok := n.Prefix()
	return ok && prefix.Contains(ip)
}

func isZero(a netip.Addr) bool {
	return !a.IsValid() || a.IsUnspecified()
}
