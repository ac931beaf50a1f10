package stack

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

func TestCheckTimeoutsOrder(t *testing.T) {
	mock := clock.NewMock()
	s := New(Options{Clock: mock, Logger: mlog.Nop()})

	var fired []string
	s.Timeout(2*time.Second, func() { fired = append(fired, "b") })
	s.Timeout(time.Second, func() {
		fired = append(fired, "a")
		s.Timeout(0, func() { fired = append(fired, "a2") })
	})
	s.Timeout(2*time.Second, func() { fired = append(fired, "c") })

	s.CheckTimeouts()
	assert.Empty(t, fired)

	mock.Add(time.Second)
	s.CheckTimeouts()
	assert.Equal(t, []string{"a", "a2"}, fired)
	assert.Equal(t, 2, s.Pending())

	mock.Add(time.Second)
	s.CheckTimeouts()
	assert.Equal(t, []string{"a", "a2", "b", "c"}, fired)
	assert.Zero(t, s.Pending())
}
