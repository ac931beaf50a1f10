package status

import (
	"github.com/wlynxg/EtherHive/core/stack"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

// Service is started once enough interfaces have an address.
type Service interface {
	Start() error
}

type ServiceFunc func() error

func (f ServiceFunc) Start() error { return f() }

// Observer logs interface status and link transitions and gates a
// dependent service on address acquisition. It is called from the stack
// context only.
type Observer struct {
	log       *mlog.Logger
	minEvents int
	service   Service

	events  int
	started bool
	err     error
}

// New returns an observer that starts svc, at most once, after
// minEvents "interface became addressed" transitions. svc may be nil.
func New(minEvents int, svc Service, log *mlog.Logger) *Observer {
	if minEvents < 1 {
		minEvents = 1
	}
	if log == nil {
		log = mlog.New("status")
	}
	return &Observer{log: log, minEvents: minEvents, service: svc}
}

func (o *Observer) OnStatus(nif *stack.Netif) {
	if !nif.IsUp() {
		o.log.Infof("netif %s down", nif)
		return
	}
	if !nif.HasAddr() {
		o.log.Infof("netif %s up, no address yet", nif)
		return
	}

	o.events++
	o.log.Infof("netif %s up, address %s netmask %s gateway %s", nif, nif.Addr(), nif.Netmask(), nif.Gateway())
	if o.service == nil || o.started || o.events < o.minEvents {
		return
	}

	// one shot: a failed start is not retried
	o.started = true
	if o.err = o.service.Start(); o.err != nil {
		o.log.Errorf("dependent service failed to start: %v", o.err)
		return
	}
	o.log.Infof("dependent service started after %d address events", o.events)
}

func (o *Observer) OnLink(nif *stack.Netif) {
	if nif.IsLinkUp() {
		o.log.Infof("netif %s link up", nif)
	} else {
		o.log.Warnf("netif %s link down", nif)
	}
}

// Events is the number of address-acquired transitions seen so far.
func (o *Observer) Events() int { return o.events }

// Started reports whether the dependent service start was attempted,
// and its result.
func (o *Observer) Started() (bool, error) { return o.started, o.err }
