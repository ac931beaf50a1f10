package pipeline

import (
	"go.uber.org/zap"

	"github.com/wlynxg/EtherHive/core/device"
	"github.com/wlynxg/EtherHive/core/protocol"
	"github.com/wlynxg/EtherHive/core/stack"
	"github.com/wlynxg/EtherHive/core/stats"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

// Stack is the buffer side of the protocol stack.
type Stack interface {
	// Padding is the number of bytes reserved in front of every frame.
	Padding() int
	Alloc(length int) (*stack.Pbuf, error)
}

// Pipeline moves frames between one driver and one stack interface. It
// never keeps a frame past the call that handles it.
type Pipeline struct {
	log    *mlog.Logger
	stack  Stack
	driver device.Driver
	stats  *stats.Link
	nif    *stack.Netif
	debug  bool

	// transmit scratch, resliced to each outgoing frame
	scratch []byte
}

func New(s Stack, d device.Driver, st *stats.Link, log *mlog.Logger) *Pipeline {
	if st == nil {
		st = new(stats.Link)
	}
	if log == nil {
		log = mlog.New("pipeline")
	}
	return &Pipeline{
		log:    log,
		stack:  s,
		driver: d,
		stats:  st,
		debug:  log.Desugar().Core().Enabled(zap.DebugLevel),
	}
}

// Attach binds the pipeline to the interface frames are delivered to.
func (p *Pipeline) Attach(nif *stack.Netif) {
	p.nif = nif
}

// Detach unbinds the interface; frames received afterwards are dropped.
func (p *Pipeline) Detach() {
	p.nif = nil
}

// LinkUp reports the driver's carrier, or up when it cannot sense one.
func (p *Pipeline) LinkUp() bool {
	return device.LinkState(p.driver)
}

func (p *Pipeline) Stats() *stats.Link {
	return p.stats
}

// Receive copies frame into a stack buffer and hands it to the bound
// interface. Every frame is either delivered or counted as dropped.
func (p *Pipeline) Receive(frame []byte) {
	nif := p.nif
	if nif == nil {
		p.stats.Drop.Add(1)
		return
	}

	pad := p.stack.Padding()
	b, err := p.stack.Alloc(len(frame) + pad)
	if err != nil {
		p.stats.MemErr.Add(1)
		p.stats.Drop.Add(1)
		p.log.Debugf("drop %d byte frame: %v", len(frame), err)
		return
	}

	if err := p.fill(b, frame, pad); err != nil {
		b.Free()
		p.stats.Drop.Add(1)
		p.log.Warnf("drop %d byte frame: %v", len(frame), err)
		return
	}

	if p.debug {
		p.log.Debugf("rx %s", protocol.Describe(frame))
	}
	if err := nif.Input(b); err != nil {
		b.Free()
		p.stats.Drop.Add(1)
		p.log.Debugf("stack rejected %d byte frame: %v", len(frame), err)
		return
	}
	p.stats.Recv.Add(1)
}

// fill copies frame behind the padding region of b.
func (p *Pipeline) fill(b *stack.Pbuf, frame []byte, pad int) error {
	if err := b.Header(-pad); err != nil {
		return err
	}
	if err := b.Take(frame); err != nil {
		return err
	}
	return b.Header(pad)
}

// Buffer is an outgoing frame as the stack holds it.
type Buffer interface {
	Len() int
	// CopyPartial copies into dst starting offset bytes in and returns
	// the number of bytes copied.
	CopyPartial(dst []byte, offset int) int
}

var _ Buffer = (*stack.Pbuf)(nil)

// Transmit is the link output of the bound interface.
func (p *Pipeline) Transmit(nif *stack.Netif, b *stack.Pbuf) error {
	return p.Send(nif, b)
}

// Send copies the payload of b, skipping the padding region, and hands
// it to the driver. The driver cannot report failure, so Send always
// returns nil.
func (p *Pipeline) Send(nif *stack.Netif, b Buffer) error {
	pad := p.stack.Padding()
	length := max(b.Len()-pad, 0)

	if cap(p.scratch) < length {
		p.scratch = make([]byte, length)
	}
	frame := p.scratch[:length]

	if n := b.CopyPartial(frame, pad); n != length {
		// the frame still goes out at full length, zero filled
		clear(frame[n:])
		p.stats.LenErr.Add(1)
		p.log.Warnf("%s: short copy on transmit, %d of %d bytes", nif, n, length)
	}

	if p.debug {
		p.log.Debugf("tx %s", protocol.Describe(frame))
	}
	p.stats.Xmit.Add(1)
	p.driver.Transmit(frame)
	return nil
}
