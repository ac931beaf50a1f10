package config

import (
	"net"

	"github.com/gogf/gf/v2/util/gconv"
	"github.com/pkg/errors"
)

// HardwareAddr is a configured link-layer address. An empty or all-zero
// value means "keep the stack default".
type HardwareAddr net.HardwareAddr

func (h HardwareAddr) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

func (h HardwareAddr) String() string {
	return net.HardwareAddr(h).String()
}

func (h HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HardwareAddr) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = nil
		return nil
	}
	mac, err := net.ParseMAC(string(text))
	if err != nil {
		return errors.Wrapf(err, "hardware address %q", text)
	}
	*h = HardwareAddr(mac)
	return nil
}

func (h *HardwareAddr) UnmarshalValue(value interface{}) error {
	return h.UnmarshalText([]byte(gconv.String(value)))
}
