//go:build !linux

package device

import (
	"time"

	"github.com/pkg/errors"
)

func CreateTAP(name string, mtu int, timeout time.Duration) (Driver, error) {
	return nil, errors.Wrapf(ErrUnsupported, "tap %s", name)
}
