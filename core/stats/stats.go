package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Link holds the frame counters of one interface. Counters are updated
// from the loop context and read by the metrics endpoint.
type Link struct {
	// Xmit counts transmit attempts, not confirmed deliveries.
	Xmit   atomic.Uint64
	Recv   atomic.Uint64
	Drop   atomic.Uint64
	MemErr atomic.Uint64
	LenErr atomic.Uint64
}

type Snapshot struct {
	Xmit   uint64 `json:"xmit"`
	Recv   uint64 `json:"recv"`
	Drop   uint64 `json:"drop"`
	MemErr uint64 `json:"memerr"`
	LenErr uint64 `json:"lenerr"`
}

func (l *Link) Snapshot() Snapshot {
	return Snapshot{
		Xmit:   l.Xmit.Load(),
		Recv:   l.Recv.Load(),
		Drop:   l.Drop.Load(),
		MemErr: l.MemErr.Load(),
		LenErr: l.LenErr.Load(),
	}
}

// Registry maps interface names to their counters and addressing state.
type Registry struct {
	mu     sync.RWMutex
	links  map[string]*Link
	states map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		links:  make(map[string]*Link),
		states: make(map[string]string),
	}
}

// Link returns the counters of name, creating them on first use.
func (r *Registry) Link(name string) *Link {
	r.mu.RLock()
	l, ok := r.links[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.links[name]; !ok {
		l = new(Link)
		r.links[name] = l
	}
	return l
}

// SetState records the addressing state shown for name.
func (r *Registry) SetState(name, state string) {
	r.mu.Lock()
	r.states[name] = state
	r.mu.Unlock()
}

func (r *Registry) State(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[name]
}

// Names lists every interface with counters or state, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.links))
	for name := range r.links {
		seen[name] = struct{}{}
	}
	for name := range r.states {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
