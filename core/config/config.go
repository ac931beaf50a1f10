package config

import (
	"fmt"
	"net/netip"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/pkg/errors"

	mlog "github.com/wlynxg/EtherHive/pkgs/log"
)

type StackConfig struct {
	// Padding is the alignment region in front of every frame buffer.
	Padding  int
	PoolSize int
	BufSize  int
	IGMP     bool
}

type EngineConfig struct {
	// StackContext runs setup and the loop in a dedicated stack goroutine.
	StackContext  bool
	PollTimeoutMs int
}

type StatusConfig struct {
	// MinAddressEvents is how many "addressed" transitions must be seen
	// before the dependent service starts; below 1 the first one does.
	MinAddressEvents int
}

type MetricsConfig struct {
	Listen string
}

type Config struct {
	path    string
	Log     []mlog.CoreConfig
	Metrics MetricsConfig
	Stack   StackConfig
	Engine  EngineConfig
	Status  StatusConfig
	// Store is an optional key/value file, or an http(s) provisioning
	// server, consulted before bring-up.
	Store   string
	Devices []*DeviceConfig
}

func (c *Config) Path() string {
	return c.path
}

func (c *Config) Save() error {
	data, err := gjson.MarshalIndent(c, "", "\t")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := gfile.PutBytes(c.path, data); err != nil {
		return errors.Wrapf(err, "write config %s", c.path)
	}
	return nil
}

// Load reads path if it exists, fills defaults and validates the result.
// A missing file yields the default single-device configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if gfile.Exists(path) {
		load, err := gjson.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load config %s", path)
		}

		if err := load.Scan(cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.path = path
	defaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig(cfg *Config) {
	if len(cfg.Log) == 0 {
		cfg.Log = []mlog.CoreConfig{{OutputType: "console", Level: "info", EncodeColor: true}}
	}

	if cfg.Stack.PoolSize == 0 {
		cfg.Stack.PoolSize = 16
	}

	if cfg.Stack.BufSize == 0 {
		cfg.Stack.BufSize = 1536
	}

	if cfg.Engine.PollTimeoutMs == 0 {
		cfg.Engine.PollTimeoutMs = 10
	}

	if len(cfg.Devices) == 0 {
		cfg.Devices = []*DeviceConfig{DefaultDevice()}
	}

	for i, dev := range cfg.Devices {
		if dev == nil {
			continue
		}
		if dev.Name == "" {
			dev.Name = fmt.Sprintf("e%d", i)
		}
		if dev.Driver.Type == "" {
			dev.Driver.Type = DriverTAP
		}
	}
}

// DefaultDevice is the out-of-the-box device: static 10.0.2.99/16 via
// 10.0.0.1, the address QEMU user networking expects.
func DefaultDevice() *DeviceConfig {
	return &DeviceConfig{
		Name:    "e0",
		Driver:  DriverConfig{Type: DriverTAP, Name: "tap0"},
		Mode:    ModeStatic,
		Address: netip.MustParseAddr("10.0.2.99"),
		Netmask: netip.MustParseAddr("255.255.0.0"),
		Gateway: netip.MustParseAddr("10.0.0.1"),
		Default: true,
	}
}

func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Devices))
	defaults := 0
	for i, dev := range c.Devices {
		if dev == nil {
			return errors.Errorf("devices[%d] is empty", i)
		}
		if len(dev.Name) != 2 {
			return errors.Errorf("devices[%d]: name %q must be two characters", i, dev.Name)
		}
		if _, ok := names[dev.Name]; ok {
			return errors.Errorf("devices[%d]: duplicate name %q", i, dev.Name)
		}
		names[dev.Name] = struct{}{}

		switch dev.Driver.Type {
		case DriverTAP, DriverChannel:
		default:
			return errors.Wrapf(ErrDriver, "devices[%d]: %q", i, dev.Driver.Type)
		}

		if dev.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.Errorf("%d devices are marked as default route, at most one is allowed", defaults)
	}
	if c.Stack.Padding < 0 || c.Stack.Padding >= c.Stack.BufSize {
		return errors.Errorf("stack padding %d out of range", c.Stack.Padding)
	}
	return nil
}
