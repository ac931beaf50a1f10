package config

import (
	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/pkg/errors"
)

// Loader may rewrite a device record before it is brought up.
type Loader interface {
	Load(dev *DeviceConfig) error
}

type NopLoader struct{}

func (NopLoader) Load(*DeviceConfig) error { return nil }

// StoreLoader reads per-device overrides from a key/value file keyed by
// device name, e.g. {"e0": {"Mode": "dhcp"}}. Keys absent from the store
// keep their configured value.
type StoreLoader struct {
	Path string
}

func (l StoreLoader) Load(dev *DeviceConfig) error {
	if !gfile.Exists(l.Path) {
		return errors.Errorf("config store %s does not exist", l.Path)
	}

	store, err := gjson.Load(l.Path)
	if err != nil {
		return errors.Wrapf(err, "load config store %s", l.Path)
	}

	v := store.Get(dev.Name)
	if v.IsNil() {
		return nil
	}
	if err := v.Scan(dev); err != nil {
		return errors.Wrapf(err, "apply config store %s to %s", l.Path, dev.Name)
	}
	return nil
}
