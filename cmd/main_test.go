package main

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/netif"
	"github.com/wlynxg/EtherHive/core/stack"
	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

type countingLink struct {
	frames int
}

func (l *countingLink) Attach(*stack.Netif) {}

func (l *countingLink) Detach() {}

func (l *countingLink) Transmit(*stack.Netif, *stack.Pbuf) error {
	l.frames++
	return nil
}

func TestAnnounceServiceAddressedOnly(t *testing.T) {
	s := stack.New(stack.Options{Logger: mlog.Nop()})
	m := netif.NewManager(s, nil, nil, mlog.Nop())

	static := &countingLink{}
	_, err := m.BringUp(&config.DeviceConfig{
		Name:    "e0",
		Mode:    config.ModeStatic,
		Address: netip.MustParseAddr("10.0.2.99"),
		Netmask: netip.MustParseAddr("255.255.0.0"),
	}, static)
	require.NoError(t, err)

	autoip := &countingLink{}
	_, err = m.BringUp(&config.DeviceConfig{Name: "e1", Mode: config.ModeAutoIP}, autoip)
	require.NoError(t, err)

	before := static.frames
	svc := &announceService{stack: s, ifaces: m}
	require.NoError(t, svc.Start())
	assert.Equal(t, before+1, static.frames)
	assert.Zero(t, autoip.frames, "an interface still probing is not announced")
}
