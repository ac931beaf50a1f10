package device

import (
	"sync/atomic"
	"time"
)

var (
	_ Driver       = (*Channel)(nil)
	_ LinkReporter = (*Channel)(nil)
)

// Channel is an in-process driver: frames written by the peer with
// Inject are returned by Poll, and transmitted frames show up on Sent.
type Channel struct {
	rx      chan []byte
	tx      chan []byte
	timeout time.Duration

	link    atomic.Bool
	promisc atomic.Bool
	resets  atomic.Int32
	dropped atomic.Int64
}

// NewChannel creates a channel driver buffering size frames per
// direction. Poll waits at most timeout for a frame.
func NewChannel(size int, timeout time.Duration) *Channel {
	c := &Channel{
		rx:      make(chan []byte, size),
		tx:      make(chan []byte, size),
		timeout: timeout,
	}
	c.link.Store(true)
	return c
}

func (c *Channel) Reset() error {
	c.resets.Add(1)
	for {
		select {
		case <-c.rx:
		default:
			return nil
		}
	}
}

func (c *Channel) SetPromiscuous(on bool) error {
	c.promisc.Store(on)
	return nil
}

func (c *Channel) Poll(handle func(frame []byte)) error {
	select {
	case frame := <-c.rx:
		handle(frame)
		return nil
	default:
	}
	if c.timeout <= 0 {
		return nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case frame := <-c.rx:
		handle(frame)
	case <-timer.C:
	}
	return nil
}

// Transmit queues a copy of frame on Sent, dropping it when the queue is
// full.
func (c *Channel) Transmit(frame []byte) {
	buff := make([]byte, len(frame))
	copy(buff, frame)
	select {
	case c.tx <- buff:
	default:
		c.dropped.Add(1)
	}
}

func (c *Channel) Close() error {
	return nil
}

func (c *Channel) LinkUp() bool { return c.link.Load() }

// SetLink changes the carrier reported by LinkUp.
func (c *Channel) SetLink(up bool) { c.link.Store(up) }

// Inject queues a copy of frame for the next Poll.
func (c *Channel) Inject(frame []byte) {
	buff := make([]byte, len(frame))
	copy(buff, frame)
	c.rx <- buff
}

// Sent yields transmitted frames.
func (c *Channel) Sent() <-chan []byte { return c.tx }

func (c *Channel) Promiscuous() bool { return c.promisc.Load() }

func (c *Channel) Resets() int { return int(c.resets.Load()) }

// Dropped counts transmitted frames lost to a full queue.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }
