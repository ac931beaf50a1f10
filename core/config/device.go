package config

import (
	"net/netip"

	"github.com/pkg/errors"
)

const (
	DriverTAP     = "tap"
	DriverChannel = "channel"
)

var ErrDriver = errors.New("unknown driver")

type DriverConfig struct {
	// Type is one of DriverTAP, DriverChannel
	Type string
	// Name is the OS device name, e.g. "tap0"
	Name string
}

// DeviceConfig describes the desired setup of one physical interface.
type DeviceConfig struct {
	Name         string
	Driver       DriverConfig
	HardwareAddr HardwareAddr
	Mode         Mode
	// Address, Netmask and Gateway are only meaningful in ModeStatic.
	Address  netip.Addr
	Netmask  netip.Addr
	Gateway  netip.Addr
	MTU      uint16
	Default  bool
	Hostname string
}

// ResolveMode returns the effective addressing mode.
func (c *DeviceConfig) ResolveMode() (Mode, error) {
	if !c.Mode.Valid() {
		return c.Mode, errors.Wrapf(ErrInvalidMode, "device %s: %s", c.Name, c.Mode)
	}
	return c.Mode, nil
}

// ClearAddresses zeroes the static addressing fields before a dynamic
// mode learns them.
func (c *DeviceConfig) ClearAddresses() {
	c.Address = netip.IPv4Unspecified()
	c.Netmask = netip.IPv4Unspecified()
	c.Gateway = netip.IPv4Unspecified()
}

// Clone returns a deep copy, so bring-up may mutate it freely.
func (c *DeviceConfig) Clone() *DeviceConfig {
	cp := *c
	if c.HardwareAddr != nil {
		cp.HardwareAddr = append(HardwareAddr(nil), c.HardwareAddr...)
	}
	return &cp
}
