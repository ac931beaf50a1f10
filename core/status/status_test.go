package status

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wlynxg/EtherHive/core/stack"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

func newNetif(t *testing.T, s *stack.Local, name string) *stack.Netif {
	t.Helper()
	nif := &stack.Netif{Name: [2]byte{name[0], name[1]}}
	zero := netip.IPv4Unspecified()
	require.NoError(t, s.Add(nif, zero, zero, zero, func(*stack.Netif) error { return nil }, s.EthernetInput))
	return nif
}

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

func TestServiceGate(t *testing.T) {
	s := stack.New(stack.Options{Logger: mlog.Nop()})
	var starts int
	o := New(2, ServiceFunc(func() error { starts++; return nil }), mlog.Nop())

	e0, e1 := newNetif(t, s, "e0"), newNetif(t, s, "e1")
	for _, nif := range []*stack.Netif{e0, e1} {
		s.SetStatusCallback(nif, o.OnStatus)
	}

	s.SetUp(e0)
	assert.Zero(t, o.Events(), "up without an address is not an address event")

	s.SetAddr(e0, addr("10.0.0.2"), addr("255.0.0.0"), netip.IPv4Unspecified())
	assert.Equal(t, 1, o.Events())
	assert.Zero(t, starts)

	s.SetAddr(e1, addr("10.1.0.2"), addr("255.255.0.0"), netip.IPv4Unspecified())
	s.SetUp(e1)
	assert.Equal(t, 2, o.Events())
	assert.Equal(t, 1, starts)

	s.SetAddr(e0, addr("10.0.0.3"), addr("255.0.0.0"), netip.IPv4Unspecified())
	assert.Equal(t, 1, starts, "service starts exactly once")
	started, err := o.Started()
	assert.True(t, started)
	assert.NoError(t, err)
}

func TestServiceFailureNotRetried(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := stack.New(stack.Options{Logger: mlog.Nop()})
	var starts int
	boom := errors.New("no time server")
	o := New(0, ServiceFunc(func() error { starts++; return boom }), mlog.NewWithCore("status", core))

	nif := newNetif(t, s, "e0")
	s.SetStatusCallback(nif, o.OnStatus)
	s.SetAddr(nif, addr("10.0.0.2"), addr("255.0.0.0"), netip.IPv4Unspecified())
	s.SetUp(nif)
	s.SetAddr(nif, addr("10.0.0.4"), addr("255.0.0.0"), netip.IPv4Unspecified())

	assert.Equal(t, 1, starts)
	_, err := o.Started()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessageSnippet("dependent service failed").Len())
}

func TestLinkLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := stack.New(stack.Options{Logger: mlog.Nop()})
	o := New(1, nil, mlog.NewWithCore("status", core))

	nif := newNetif(t, s, "e0")
	s.SetLinkCallback(nif, o.OnLink)
	s.SetLinkUp(nif)
	s.SetLinkDown(nif)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[1].Level)
}
