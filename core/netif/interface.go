package netif

import (
	"fmt"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/stack"
)

// State is the addressing state of an interface.
type State uint8

const (
	StateNone State = iota
	StateAddressed
	StateDHCPClientStarted
	StateAutoIPClientStarted
	// StateDegraded interfaces exist but never get an address.
	StateDegraded
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateAddressed:
		return "addressed"
	case StateDHCPClientStarted:
		return "dhcp-client-started"
	case StateAutoIPClientStarted:
		return "autoip-client-started"
	case StateDegraded:
		return "degraded"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Interface binds a device configuration to its stack state. The stack
// holds pointers into it while the interface is up, so an Interface is
// reused in place across bring-up cycles and never copied.
type Interface struct {
	// Config is the working copy bring-up ran with.
	Config *config.DeviceConfig
	// Mode is the mode resolved at bring-up, used again at tear-down.
	Mode config.Mode

	Netif  stack.Netif
	DHCP   stack.DHCP
	AutoIP stack.AutoIP

	link  Link
	state State
}

func (i *Interface) State() State { return i.state }

func (i *Interface) Name() string { return i.Netif.String() }

func (i *Interface) String() string {
	nif := &i.Netif
	switch i.Mode {
	case config.ModeStatic:
		return fmt.Sprintf("%s static %s/%s gw %s [%s]", nif, nif.Addr(), nif.Netmask(), nif.Gateway(), i.state)
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		return fmt.Sprintf("%s %s %s/%s gw %s dhcp=%s [%s]", nif, i.Mode, nif.Addr(), nif.Netmask(), nif.Gateway(), i.DHCP.State(), i.state)
	case config.ModeAutoIP:
		return fmt.Sprintf("%s autoip %s autoip=%s [%s]", nif, nif.Addr(), i.AutoIP.State(), i.state)
	default:
		return fmt.Sprintf("%s %s [%s]", nif, i.Mode, i.state)
	}
}

// reset zeroes everything bring-up wrote.
func (i *Interface) reset() {
	i.Config = nil
	i.Mode = config.ModeInvalid
	i.Netif = stack.Netif{}
	i.DHCP = stack.DHCP{}
	i.AutoIP = stack.AutoIP{}
	i.link = nil
}
