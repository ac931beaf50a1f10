package xpool

import (
	"sync"
)

type Pool[T any] struct {
	pool sync.Pool
}

func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{New: func() interface{} { return fn() }},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(x T) {
	p.pool.Put(x)
}

// Bounded is a pool that hands out at most Cap objects at a time.
// Get reports false when the pool is exhausted, like a fixed-size
// memory pool on a target without a heap to fall back on.
type Bounded[T any] struct {
	pool  *Pool[T]
	limit int
	inUse int
	mu    sync.Mutex
	reset func(T) T
}

func NewBounded[T any](limit int, fn func() T, reset func(T) T) *Bounded[T] {
	return &Bounded[T]{
		pool:  New(fn),
		limit: limit,
		reset: reset,
	}
}

func (b *Bounded[T]) Get() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inUse >= b.limit {
		var zero T
		return zero, false
	}
	b.inUse++
	return b.pool.Get(), true
}

func (b *Bounded[T]) Put(x T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inUse == 0 {
		return
	}
	b.inUse--
	if b.reset != nil {
		x = b.reset(x)
	}
	b.pool.Put(x)
}

// InUse returns the number of objects currently handed out.
func (b *Bounded[T]) InUse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

func (b *Bounded[T]) Cap() int {
	return b.limit
}
