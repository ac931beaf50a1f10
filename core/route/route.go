package route

import (
	"net"
	"net/netip"
	"sync"

	"github.com/libp2p/go-cidranger"
	"github.com/pkg/errors"
)

type entry[V any] struct {
	network net.IPNet
	value   V
}

func (e *entry[V]) Network() net.IPNet {
	return e.network
}

// Table selects an outbound value (usually an interface) for a
// destination: the most specific on-link prefix wins, otherwise the
// default.
type Table[V comparable] struct {
	mu       sync.RWMutex
	ranger   cidranger.Ranger
	def      V
	hasDef   bool
	prefixes map[V]netip.Prefix
}

func New[V comparable]() *Table[V] {
	return &Table[V]{
		ranger:   cidranger.NewPCTrieRanger(),
		prefixes: make(map[V]netip.Prefix),
	}
}

func toIPNet(prefix netip.Prefix) net.IPNet {
	prefix = prefix.Masked()
	bits := 32
	if prefix.Addr().Is6() {
		bits = 128
	}
	return net.IPNet{
		IP:   prefix.Addr().AsSlice(),
		Mask: net.CIDRMask(prefix.Bits(), bits),
	}
}

// Set binds v to prefix, replacing any prefix v had before.
func (t *Table[V]) Set(v V, prefix netip.Prefix) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remove(v)
	if err := t.ranger.Insert(&entry[V]{network: toIPNet(prefix), value: v}); err != nil {
		return errors.Wrapf(err, "insert route %s", prefix)
	}
	t.prefixes[v] = prefix.Masked()
	return nil
}

// Remove drops the prefix of v. The default is left alone.
func (t *Table[V]) Remove(v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(v)
}

// ClearDefault unsets the default if it is v.
func (t *Table[V]) ClearDefault(v V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasDef && t.def == v {
		var zero V
		t.def, t.hasDef = zero, false
	}
}

func (t *Table[V]) remove(v V) {
	prefix, ok := t.prefixes[v]
	if !ok {
		return
	}
	delete(t.prefixes, v)

	// several values may share a prefix; put the others back
	_, _ = t.ranger.Remove(toIPNet(prefix))
	for other, p := range t.prefixes {
		if p == prefix {
			_ = t.ranger.Insert(&entry[V]{network: toIPNet(p), value: other})
			break
		}
	}
}

func (t *Table[V]) SetDefault(v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.def, t.hasDef = v, true
}

func (t *Table[V]) Default() (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.def, t.hasDef
}

// Lookup returns the value with the longest prefix containing dst, or
// the default.
func (t *Table[V]) Lookup(dst netip.Addr) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, err := t.ranger.ContainingNetworks(dst.AsSlice())
	if err == nil && len(entries) > 0 {
		best, bestOnes := entries[0], -1
		for _, e := range entries {
			network := e.Network()
			if ones, _ := network.Mask.Size(); ones > bestOnes {
				best, bestOnes = e, ones
			}
		}
		if e, ok := best.(*entry[V]); ok {
			return e.value, true
		}
	}
	return t.def, t.hasDef
}

func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prefixes)
}
