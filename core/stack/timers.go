package stack

import (
	"sort"
	"time"
)

type timeout struct {
	at  time.Time
	seq uint64
	fn  func()
}

type timers struct {
	list []timeout
	seq  uint64
}

func (t *timers) add(at time.Time, fn func()) {
	t.seq++
	to := timeout{at: at, seq: t.seq, fn: fn}
	i := sort.Search(len(t.list), func(i int) bool {
		return t.list[i].at.After(at)
	})
	t.list = append(t.list, timeout{})
	copy(t.list[i+1:], t.list[i:])
	t.list[i] = to
}

// due pops the earliest timeout that is due at now.
func (t *timers) due(now time.Time) (func(), bool) {
	if len(t.list) == 0 || t.list[0].at.After(now) {
		return nil, false
	}
	fn := t.list[0].fn
	t.list = t.list[1:]
	return fn, true
}

// Timeout schedules fn to run from CheckTimeouts once d has passed.
func (s *Local) Timeout(d time.Duration, fn func()) {
	s.timers.add(s.clock.Now().Add(d), fn)
}

// CheckTimeouts runs every due timeout, including ones scheduled by the
// handlers themselves if they are already due.
func (s *Local) CheckTimeouts() {
	now := s.clock.Now()
	for {
		fn, ok := s.timers.due(now)
		if !ok {
			return
		}
		fn()
	}
}

// Pending is the number of scheduled timeouts.
func (s *Local) Pending() int {
	return len(s.timers.list)
}
