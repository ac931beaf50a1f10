package engine

import (
	"context"
	"time"
)

// loop polls every driver once per round, feeding frames to its
// pipeline, then services the stack timers. The only wait is inside the
// drivers' Poll.
func (e *Engine) loop(ctx context.Context) {
	lastLink := e.opt.Clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for _, p := range e.ports {
			if err := p.driver.Poll(p.pipe.Receive); err != nil {
				e.log.Warnf("%s: poll: %v", p.cfg.Name, err)
			}
		}

		if now := e.opt.Clock.Now(); now.Sub(lastLink) >= e.opt.LinkInterval {
			lastLink = now
			e.refreshLinks()
		}
		e.stack.CheckTimeouts()
		e.yield()
	}
}

func (e *Engine) refreshLinks() {
	for _, p := range e.ports {
		e.manager.RefreshLink(p.iface)
	}
}

// yield keeps a loop over drivers without a poll timeout from spinning.
func (e *Engine) yield() {
	if len(e.ports) == 0 {
		time.Sleep(time.Millisecond)
	}
}
