package stack

import (
	"github.com/pkg/errors"

	"github.com/wlynxg/EtherHive/pkgs/xpool"
)

// Pbuf is a packet buffer: a chain of fixed-size pool segments. Only the
// first segment carries a header region that Header can expose or hide.
type Pbuf struct {
	next *Pbuf
	buf  []byte
	off  int
	n    int
	pool *Pool
}

// Pool hands out Pbuf segments from a fixed budget.
type Pool struct {
	segSize int
	segs    *xpool.Bounded[*Pbuf]
}

func NewPool(count, segSize int) *Pool {
	p := &Pool{segSize: segSize}
	p.segs = xpool.NewBounded(count, func() *Pbuf {
		return &Pbuf{buf: make([]byte, segSize), pool: p}
	}, func(seg *Pbuf) *Pbuf {
		seg.next, seg.off, seg.n = nil, 0, 0
		return seg
	})
	return p
}

// Alloc returns a chain whose total length is length, or ErrMem when
// the pool cannot cover it.
func (p *Pool) Alloc(length int) (*Pbuf, error) {
	if length < 0 {
		return nil, errors.Wrapf(ErrArg, "alloc %d bytes", length)
	}

	var head, tail *Pbuf
	remaining := length
	for first := true; first || remaining > 0; first = false {
		seg, ok := p.segs.Get()
		if !ok {
			if head != nil {
				head.Free()
			}
			return nil, errors.Wrapf(ErrMem, "alloc %d bytes", length)
		}
		seg.n = min(remaining, p.segSize)
		remaining -= seg.n

		if head == nil {
			head = seg
		} else {
			tail.next = seg
		}
		tail = seg
	}
	return head, nil
}

// InUse reports the number of segments currently allocated.
func (p *Pool) InUse() int {
	return p.segs.InUse()
}

// Len is the total payload length of the chain.
func (b *Pbuf) Len() int {
	total := 0
	for q := b; q != nil; q = q.next {
		total += q.n
	}
	return total
}

// Header moves the start of the payload: a positive delta exposes delta
// bytes in front of it, a negative one hides them.
func (b *Pbuf) Header(delta int) error {
	off := b.off - delta
	n := b.n + delta
	if off < 0 || n < 0 {
		return errors.Wrapf(ErrBuf, "header adjust %d", delta)
	}
	b.off, b.n = off, n
	return nil
}

// Take copies src into the start of the chain.
func (b *Pbuf) Take(src []byte) error {
	if len(src) > b.Len() {
		return errors.Wrapf(ErrArg, "take %d bytes into %d", len(src), b.Len())
	}
	for q := b; q != nil && len(src) > 0; q = q.next {
		n := copy(q.buf[q.off:q.off+q.n], src)
		src = src[n:]
	}
	return nil
}

// CopyPartial copies up to len(dst) bytes starting at offset and returns
// how many were copied.
func (b *Pbuf) CopyPartial(dst []byte, offset int) int {
	copied := 0
	for q := b; q != nil && copied < len(dst); q = q.next {
		if offset >= q.n {
			offset -= q.n
			continue
		}
		n := copy(dst[copied:], q.buf[q.off+offset:q.off+q.n])
		copied += n
		offset = 0
	}
	return copied
}

// Bytes returns a flat copy of the payload.
func (b *Pbuf) Bytes() []byte {
	out := make([]byte, b.Len())
	b.CopyPartial(out, 0)
	return out
}

// Free returns every segment of the chain to its pool.
func (b *Pbuf) Free() {
	for q := b; q != nil; {
		next := q.next
		q.pool.segs.Put(q)
		q = next
	}
}
