package engine

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/netif"
	"github.com/wlynxg/EtherHive/core/stats"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

const DefaultLinkInterval = time.Second

type Option struct {
	// StackContext runs setup, the loop and teardown in a dedicated
	// goroutine; Run waits for setup to finish before waiting for the loop.
	StackContext bool
	// LinkInterval is how often driver carrier state is re-read.
	LinkInterval time.Duration
	// Loader may rewrite each device record before bring-up.
	Loader   config.Loader
	Observer netif.Observer
	Stats    *stats.Registry
	Clock    clock.Clock
	Logger   *mlog.Logger
}

func (o *Option) defaults() {
	if o.LinkInterval <= 0 {
		o.LinkInterval = DefaultLinkInterval
	}
	if o.Loader == nil {
		o.Loader = config.NopLoader{}
	}
	if o.Stats == nil {
		o.Stats = stats.NewRegistry()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = mlog.New("engine")
	}
}
