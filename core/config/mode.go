package config

import (
	"strconv"
	"strings"

	"github.com/gogf/gf/v2/util/gconv"
	"github.com/pkg/errors"
)

// Mode selects how an interface acquires its IPv4 address.
type Mode uint8

// The numeric values are the ones persisted by earlier firmware.
const (
	ModeInvalid    Mode = 0
	ModeStatic     Mode = 1
	ModeDHCPAutoIP Mode = 2
	ModeDHCP       Mode = 3
	ModeAutoIP     Mode = 4
)

var ErrInvalidMode = errors.New("invalid addressing mode")

func (m Mode) Valid() bool {
	switch m {
	case ModeStatic, ModeDHCPAutoIP, ModeDHCP, ModeAutoIP:
		return true
	default:
		return false
	}
}

// Dynamic reports whether addresses are learned at runtime.
func (m Mode) Dynamic() bool {
	switch m {
	case ModeDHCPAutoIP, ModeDHCP, ModeAutoIP:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeDHCPAutoIP:
		return "dhcp-autoip"
	case ModeDHCP:
		return "dhcp"
	case ModeAutoIP:
		return "autoip"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return []byte(strconv.Itoa(int(m))), nil
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts a mode name or its number. Unknown names decode
// to ModeInvalid so that the record still loads and the interface comes
// up degraded instead of refusing to boot.
func (m *Mode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	switch s {
	case "static":
		*m = ModeStatic
	case "dhcp-autoip", "dhcp_autoip", "dhcpautoip":
		*m = ModeDHCPAutoIP
	case "dhcp":
		*m = ModeDHCP
	case "autoip":
		*m = ModeAutoIP
	default:
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			*m = ModeInvalid
			return nil
		}
		*m = Mode(n)
	}
	return nil
}

// UnmarshalValue lets gconv decode numbers as well as names.
func (m *Mode) UnmarshalValue(value interface{}) error {
	return m.UnmarshalText([]byte(gconv.String(value)))
}
