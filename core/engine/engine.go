package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/device"
	"github.com/wlynxg/EtherHive/core/netif"
	"github.com/wlynxg/EtherHive/core/pipeline"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

// Stack is everything the engine needs from the protocol stack.
type Stack interface {
	netif.Stack
	pipeline.Stack
	// CheckTimeouts runs the stack's due timers.
	CheckTimeouts()
}

// Device pairs a configuration record with the driver backing it.
type Device struct {
	Config *config.DeviceConfig
	Driver device.Driver
}

type port struct {
	cfg    *config.DeviceConfig
	driver device.Driver
	pipe   *pipeline.Pipeline
	iface  *netif.Interface
}

// Engine owns the drivers and drives the stack until its context ends.
type Engine struct {
	log     *mlog.Logger
	opt     Option
	stack   Stack
	manager *netif.Manager
	devices []Device
	ports   []*port

	ready     chan struct{}
	readyOnce sync.Once
}

func New(s Stack, devices []Device, opt Option) *Engine {
	opt.defaults()
	return &Engine{
		log:     opt.Logger,
		opt:     opt,
		stack:   s,
		manager: netif.NewManager(s, opt.Observer, opt.Stats, opt.Logger.Named("netif")),
		devices: devices,
		ready:   make(chan struct{}),
	}
}

func (e *Engine) Manager() *netif.Manager {
	return e.manager
}

// Ready is closed once every interface is up.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Run brings every device up, runs the loop until ctx is done and tears
// everything down again. Errors during setup are fatal and returned
// after the devices set up so far are torn down.
func (e *Engine) Run(ctx context.Context) error {
	if !e.opt.StackContext {
		return e.run(ctx, nil)
	}

	// setup happens in the stack goroutine, which signals once when done
	setup := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.run(ctx, setup)
	}()

	if err := <-setup; err != nil {
		<-done
		return err
	}
	e.log.Debugf("stack context ready")
	return <-done
}

func (e *Engine) run(ctx context.Context, setup chan<- error) error {
	err := e.setup()
	if setup != nil {
		setup <- err
	}
	if err != nil {
		e.teardown()
		return err
	}
	e.readyOnce.Do(func() { close(e.ready) })

	e.loop(ctx)
	e.teardown()
	return nil
}

func (e *Engine) setup() error {
	for i, d := range e.devices {
		cfg := d.Config.Clone()
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("e%d", i)
		}

		// a broken store must not keep the device down
		if err := e.opt.Loader.Load(cfg); err != nil {
			e.log.Warnf("%s: config read failed, using the configured record: %v", cfg.Name, err)
		}

		if err := d.Driver.Reset(); err != nil {
			return errors.Wrapf(err, "%s: reset driver", cfg.Name)
		}
		if err := d.Driver.SetPromiscuous(true); err != nil {
			return errors.Wrapf(err, "%s: promiscuous mode", cfg.Name)
		}

		p := &port{
			cfg:    cfg,
			driver: d.Driver,
			pipe:   pipeline.New(e.stack, d.Driver, e.opt.Stats.Link(cfg.Name), e.log.Named("pipeline."+cfg.Name)),
		}
		e.ports = append(e.ports, p)

		iface, err := e.manager.BringUp(cfg, p.pipe)
		if err != nil {
			return err
		}
		p.iface = iface
	}
	return nil
}

func (e *Engine) teardown() {
	if err := e.manager.TearDownAll(); err != nil {
		e.log.Warnf("%v", err)
	}
	for _, p := range e.ports {
		if err := p.driver.SetPromiscuous(false); err != nil {
			e.log.Debugf("%s: %v", p.cfg.Name, err)
		}
		if err := p.driver.Close(); err != nil {
			e.log.Warnf("%s: close driver: %v", p.cfg.Name, err)
		}
	}
	e.ports = nil
	e.log.Infof("all interfaces down")
}
