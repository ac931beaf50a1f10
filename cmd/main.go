package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gogf/gf/v2/os/gfile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/control"
	"github.com/wlynxg/EtherHive/core/device"
	"github.com/wlynxg/EtherHive/core/engine"
	"github.com/wlynxg/EtherHive/core/info"
	"github.com/wlynxg/EtherHive/core/netif"
	"github.com/wlynxg/EtherHive/core/stack"
	"github.com/wlynxg/EtherHive/core/stats"
	"github.com/wlynxg/EtherHive/core/status"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

func main() {
	path := flag.String("config", "etherhive.json", "path to the configuration file")
	flag.Parse()

	existed := gfile.Exists(*path)
	cfg, err := config.Load(*path)
	if err != nil {
		mlog.New("main").Fatalf("load config: %v", err)
	}
	mlog.SetOutputTypes(cfg.Log...)
	log := mlog.New("main")

	if !existed {
		if err := cfg.Save(); err != nil {
			log.Warnf("save default config: %v", err)
		} else {
			log.Infof("wrote default config to %s", cfg.Path())
		}
	}

	node := info.New()
	log.Infof("etherhive %s on %s/%s (%s)", node.Version, node.OS, node.Arch, node.Hostname)

	s := stack.New(stack.Options{
		Padding:  cfg.Stack.Padding,
		PoolSize: cfg.Stack.PoolSize,
		BufSize:  cfg.Stack.BufSize,
		IGMP:     cfg.Stack.IGMP,
		Logger:   mlog.New("stack"),
	})

	timeout := time.Duration(cfg.Engine.PollTimeoutMs) * time.Millisecond
	var devices []engine.Device
	for _, dev := range cfg.Devices {
		if dev.Hostname == "" {
			dev.Hostname = node.Hostname
		}
		driver, err := openDriver(dev, timeout)
		if err != nil {
			log.Fatalf("%s: %v", dev.Name, err)
		}
		devices = append(devices, engine.Device{Config: dev, Driver: driver})
	}

	registry := stats.NewRegistry()
	announce := &announceService{stack: s}
	observer := status.New(cfg.Status.MinAddressEvents, announce, mlog.New("status"))

	var loader config.Loader = config.NopLoader{}
	switch {
	case strings.HasPrefix(cfg.Store, "http://"), strings.HasPrefix(cfg.Store, "https://"):
		loader = &control.Loader{Client: control.New(cfg.Store, control.DefaultTimeout), Node: *node}
	case cfg.Store != "":
		loader = config.StoreLoader{Path: cfg.Store}
	}

	e := engine.New(s, devices, engine.Option{
		StackContext: cfg.Engine.StackContext,
		Loader:       loader,
		Observer:     observer,
		Stats:        registry,
		Logger:       mlog.New("engine"),
	})

	announce.ifaces = e.Manager()

	if cfg.Metrics.Listen != "" {
		go serveMetrics(log, cfg.Metrics.Listen, registry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	log.Infof("bye")
}

// announceService is the service started once the first addresses are
// acquired: it sends a gratuitous ARP for every addressed interface.
type announceService struct {
	stack  *stack.Local
	ifaces interface{ List() []*netif.Interface }
}

// Start runs in the stack context, after the address callback.
func (a *announceService) Start() error {
	for _, iface := range a.ifaces.List() {
		if iface.Netif.HasAddr() {
			if err := a.stack.Announce(&iface.Netif); err != nil {
				return err
			}
		}
	}
	return nil
}

func openDriver(dev *config.DeviceConfig, timeout time.Duration) (device.Driver, error) {
	switch dev.Driver.Type {
	case config.DriverTAP:
		name := dev.Driver.Name
		if name == "" {
			name = "tap%d"
		}
		return device.CreateTAP(name, int(dev.MTU), timeout)
	case config.DriverChannel:
		// nothing on the other side; useful for dry runs
		return device.NewChannel(64, timeout), nil
	default:
		return nil, config.ErrDriver
	}
}

func serveMetrics(log *mlog.Logger, addr string, registry *stats.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewCollector(registry))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Errorf("metrics server: %v", err)
	}
}
