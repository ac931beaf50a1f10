package netif

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/device"
	"github.com/wlynxg/EtherHive/core/stack"
	"github.com/wlynxg/EtherHive/core/stats"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

var (
	ErrHardwareAddrSize = errors.New("hardware address must be 6 bytes")
	ErrClientStart      = errors.New("addressing client failed to start")
	ErrName             = errors.New("interface name must be 2 characters")
	ErrBusy             = errors.New("interface is already up")
)

// the interface's hardware address storage must hold a full MAC
var _ [6]byte = stack.Netif{}.HWAddr

// Stack is the part of the protocol stack the manager drives.
type Stack interface {
	Add(nif *stack.Netif, addr, netmask, gw netip.Addr, attach stack.AttachFunc, input stack.InputFunc) error
	Remove(nif *stack.Netif)
	SetDefault(nif *stack.Netif)
	SetUp(nif *stack.Netif)
	SetLinkUp(nif *stack.Netif)
	SetLinkDown(nif *stack.Netif)
	SetStatusCallback(nif *stack.Netif, fn stack.CallbackFunc)
	SetLinkCallback(nif *stack.Netif, fn stack.CallbackFunc)
	HasIGMP() bool
	EthernetInput(p *stack.Pbuf, nif *stack.Netif) error

	DHCPSetStruct(nif *stack.Netif, d *stack.DHCP)
	DHCPStart(nif *stack.Netif) error
	DHCPCleanup(nif *stack.Netif)
	AutoIPSetStruct(nif *stack.Netif, a *stack.AutoIP)
	AutoIPStart(nif *stack.Netif) error
	AutoIPRemove(nif *stack.Netif)
}

// Link is the frame path of one interface. A Link that also implements
// device.LinkReporter decides the initial and ongoing link state.
type Link interface {
	Attach(nif *stack.Netif)
	Detach()
	Transmit(nif *stack.Netif, p *stack.Pbuf) error
}

// Observer is notified of status and link transitions.
type Observer interface {
	OnStatus(nif *stack.Netif)
	OnLink(nif *stack.Netif)
}

// Manager brings interfaces up and down. Except for Get and List it must
// only be used from the stack context.
type Manager struct {
	log      *mlog.Logger
	stack    Stack
	stats    *stats.Registry
	observer Observer

	mu     sync.RWMutex
	ifaces map[string]*Interface
}

// NewManager creates a manager. observer and registry may be nil.
func NewManager(s Stack, observer Observer, registry *stats.Registry, log *mlog.Logger) *Manager {
	if registry == nil {
		registry = stats.NewRegistry()
	}
	if log == nil {
		log = mlog.New("netif")
	}
	return &Manager{
		log:      log,
		stack:    s,
		stats:    registry,
		observer: observer,
		ifaces:   make(map[string]*Interface),
	}
}

// BringUp registers an interface for cfg with the stack, starts its
// addressing client and marks it up. cfg itself is not modified. An
// invalid mode is not an error: the interface comes up Degraded.
func (m *Manager) BringUp(cfg *config.DeviceConfig, link Link) (*Interface, error) {
	cfg = cfg.Clone()
	name, err := m.name(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Name = name

	m.mu.Lock()
	iface, ok := m.ifaces[name]
	if !ok {
		iface = new(Interface)
		m.ifaces[name] = iface
	}
	m.mu.Unlock()
	if iface.state != StateNone && iface.state != StateRemoved {
		return nil, errors.Wrapf(ErrBusy, "bring up %s", name)
	}

	// 1. fresh state
	iface.reset()
	iface.Config = cfg
	iface.link = link
	nif := &iface.Netif
	log := m.log.Named(name)

	// 2. addressing mode
	mode, modeErr := cfg.ResolveMode()
	iface.Mode = mode
	switch mode {
	case config.ModeStatic:
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		cfg.ClearAddresses()
		iface.DHCP.AutoIPFallback = mode == config.ModeDHCPAutoIP
		m.stack.DHCPSetStruct(nif, &iface.DHCP)
	case config.ModeAutoIP:
		cfg.ClearAddresses()
		m.stack.AutoIPSetStruct(nif, &iface.AutoIP)
	default:
		log.Errorf("%v; interface comes up without an addressing client", modeErr)
		cfg.ClearAddresses()
	}

	// 3. name
	copy(nif.Name[:], name)

	// 4. register, which runs attach
	if err := m.stack.Add(nif, addrOrZero(cfg.Address), addrOrZero(cfg.Netmask), addrOrZero(cfg.Gateway),
		m.attach(iface), m.stack.EthernetInput); err != nil {
		iface.reset()
		iface.state = StateNone
		return nil, errors.Wrapf(err, "bring up %s", name)
	}
	link.Attach(nif)

	// 5. observers
	m.stack.SetStatusCallback(nif, func(nif *stack.Netif) { m.onStatus(iface) })
	m.stack.SetLinkCallback(nif, func(nif *stack.Netif) {
		if m.observer != nil {
			m.observer.OnLink(nif)
		}
	})

	// 6. default route
	if cfg.Default {
		m.stack.SetDefault(nif)
	}

	// 7. link and administrative state
	if r, ok := link.(device.LinkReporter); !ok || r.LinkUp() {
		m.stack.SetLinkUp(nif)
	} else {
		log.Warnf("no carrier, link stays down until the driver reports it")
	}
	switch mode {
	case config.ModeStatic:
		m.setState(iface, StateAddressed)
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		m.setState(iface, StateDHCPClientStarted)
	case config.ModeAutoIP:
		m.setState(iface, StateAutoIPClientStarted)
	default:
		m.setState(iface, StateDegraded)
	}
	m.stack.SetUp(nif)

	// 8. dynamic addressing
	switch mode {
	case config.ModeStatic:
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		err = m.stack.DHCPStart(nif)
	case config.ModeAutoIP:
		err = m.stack.AutoIPStart(nif)
	default:
	}
	if err != nil {
		err = errors.Wrapf(ErrClientStart, "bring up %s (%s): %v", name, mode, err)
		if tdErr := m.TearDown(iface); tdErr != nil {
			log.Warnf("rollback: %v", tdErr)
		}
		return nil, err
	}

	log.Infof("up: %s", iface)
	return iface, nil
}

// TearDown stops the addressing client chosen at bring-up, removes the
// interface from the stack and zeroes its state.
func (m *Manager) TearDown(iface *Interface) error {
	if iface.state == StateNone || iface.state == StateRemoved {
		return nil
	}
	nif := &iface.Netif
	name := nif.String()

	switch iface.Mode {
	case config.ModeStatic:
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		m.stack.DHCPCleanup(nif)
	case config.ModeAutoIP:
		m.stack.AutoIPRemove(nif)
	default:
	}

	if iface.link != nil {
		iface.link.Detach()
	}
	m.stack.Remove(nif)
	iface.reset()
	m.setState(iface, StateRemoved)
	m.stats.SetState(name, StateRemoved.String())
	m.log.Infof("%s removed", name)
	return nil
}

// TearDownAll removes every interface that is not already removed.
func (m *Manager) TearDownAll() error {
	var errs []error
	for _, iface := range m.List() {
		if err := m.TearDown(iface); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("tear down: %v", errs)
	}
	return nil
}

// RefreshLink follows the carrier reported by the interface's link.
func (m *Manager) RefreshLink(iface *Interface) {
	if iface.state == StateNone || iface.state == StateRemoved {
		return
	}
	r, ok := iface.link.(device.LinkReporter)
	if !ok {
		return
	}
	nif := &iface.Netif
	switch up := r.LinkUp(); {
	case up && !nif.IsLinkUp():
		m.stack.SetLinkUp(nif)
	case !up && nif.IsLinkUp():
		m.stack.SetLinkDown(nif)
	}
}

func (m *Manager) Get(name string) (*Interface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	iface, ok := m.ifaces[name]
	return iface, ok
}

// List returns the known interfaces sorted by name.
func (m *Manager) List() []*Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.ifaces))
	for name := range m.ifaces {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]*Interface, 0, len(names))
	for _, name := range names {
		list = append(list, m.ifaces[name])
	}
	return list
}

// attach is run by the stack while registering iface.
func (m *Manager) attach(iface *Interface) stack.AttachFunc {
	return func(nif *stack.Netif) error {
		cfg := iface.Config
		if n := len(cfg.HardwareAddr); n != 0 && n != stack.MaxHWAddrLen {
			return errors.Wrapf(ErrHardwareAddrSize, "%s has %d bytes", cfg.HardwareAddr, n)
		}
		if !cfg.HardwareAddr.IsZero() {
			copy(nif.HWAddr[:], cfg.HardwareAddr)
			nif.HWAddrLen = stack.MaxHWAddrLen
		}

		nif.MTU = stack.DefaultMTU
		if cfg.MTU != 0 {
			nif.MTU = cfg.MTU
		}
		nif.Flags |= stack.FlagBroadcast | stack.FlagEtharp | stack.FlagEthernet
		if m.stack.HasIGMP() {
			nif.Flags |= stack.FlagIGMP
		}
		nif.Hostname = cfg.Hostname
		nif.LinkOutput = iface.link.Transmit
		nif.State = iface
		return nil
	}
}

func (m *Manager) onStatus(iface *Interface) {
	nif := &iface.Netif
	switch iface.Mode {
	case config.ModeStatic:
	case config.ModeDHCP, config.ModeDHCPAutoIP:
		if nif.HasAddr() {
			m.setState(iface, StateAddressed)
		} else {
			m.setState(iface, StateDHCPClientStarted)
		}
	case config.ModeAutoIP:
		if nif.HasAddr() {
			m.setState(iface, StateAddressed)
		} else {
			m.setState(iface, StateAutoIPClientStarted)
		}
	default:
	}

	if m.observer != nil {
		m.observer.OnStatus(nif)
	}
}

func (m *Manager) setState(iface *Interface, state State) {
	if iface.state == state {
		return
	}
	iface.state = state
	if name := iface.Netif.String(); iface.Netif.Name != [2]byte{} {
		m.stats.SetState(name, state.String())
	}
}

// name returns cfg's interface name, assigning "e<n>" when it is empty.
func (m *Manager) name(cfg *config.DeviceConfig) (string, error) {
	if cfg.Name != "" {
		if len(cfg.Name) != 2 {
			return "", errors.Wrapf(ErrName, "%q", cfg.Name)
		}
		return cfg.Name, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("e%d", i)
		if _, ok := m.ifaces[name]; !ok {
			return name, nil
		}
	}
	return "", errors.Wrap(ErrName, "no free name")
}

func addrOrZero(a netip.Addr) netip.Addr {
	if !a.IsValid() {
		return netip.IPv4Unspecified()
	}
	return a
}
