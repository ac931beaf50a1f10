package device

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	mlog "github.com/wlynxg/EtherHive/pkgs/log"
	"github.com/wlynxg/EtherHive/pkgs/system"
)

const (
	cloneDevicePath = "/dev/net/tun"
	// ethernet header plus the largest payload we accept
	maxFrameSize = 14 + 9000
)

// compilation time interface check
var (
	_ Driver       = new(tap)
	_ LinkReporter = new(tap)
)

type tap struct {
	log     *mlog.Logger
	name    string
	mtu     int
	timeout time.Duration
	file    *os.File
	buff    []byte
}

// CreateTAP opens (or creates) the TAP interface name. mtu 0 keeps the
// kernel's default; timeout bounds how long Poll waits for a frame.
func CreateTAP(name string, mtu int, timeout time.Duration) (Driver, error) {
	fd, err := unix.Open(cloneDevicePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("CreateTAP(%q) failed; %s does not exist", name, cloneDevicePath)
		}
		return nil, errors.Wrapf(err, "open %s", cloneDevicePath)
	}

	ifreq, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	// unix.IFF_TAP: ethernet frames
	// unix.IFF_NO_PI: no packet information header
	ifreq.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifreq); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "TUNSETIFF")
	}

	// non-blocking so the runtime poller can honour read deadlines
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	actual, err := system.TapName(uintptr(fd))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	t := &tap{
		log:     mlog.New("tap." + actual),
		name:    actual,
		mtu:     mtu,
		timeout: timeout,
		file:    os.NewFile(uintptr(fd), cloneDevicePath),
		buff:    make([]byte, maxFrameSize),
	}
	return t, nil
}

func (t *tap) link() (netlink.Link, error) {
	link, err := netlink.LinkByName(t.name)
	return link, errors.Wrapf(err, "lookup link %s", t.name)
}

// Reset cycles the host side of the interface and applies the MTU.
func (t *tap) Reset() error {
	link, err := t.link()
	if err != nil {
		return err
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return errors.Wrapf(err, "set %s down", t.name)
	}
	if t.mtu > 0 {
		if err := netlink.LinkSetMTU(link, t.mtu); err != nil {
			return errors.Wrapf(err, "set %s mtu %d", t.name, t.mtu)
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, "set %s up", t.name)
	}
	t.log.Debugf("reset, mtu=%d", t.mtu)
	return nil
}

func (t *tap) SetPromiscuous(on bool) error {
	link, err := t.link()
	if err != nil {
		return err
	}
	if on {
		err = netlink.SetPromiscOn(link)
	} else {
		err = netlink.SetPromiscOff(link)
	}
	return errors.Wrapf(err, "set %s promiscuous=%v", t.name, on)
}

func (t *tap) Poll(handle func(frame []byte)) error {
	if err := t.file.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}
	n, err := t.file.Read(t.buff)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		return errors.Wrapf(err, "read %s", t.name)
	}
	handle(t.buff[:n])
	return nil
}

func (t *tap) Transmit(frame []byte) {
	if _, err := t.file.Write(frame); err != nil {
		t.log.Warnf("write %d bytes: %v", len(frame), err)
	}
}

// LinkUp reports whether the host side of the interface is running.
func (t *tap) LinkUp() bool {
	link, err := t.link()
	if err != nil {
		return false
	}
	return link.Attrs().Flags&net.FlagRunning != 0
}

func (t *tap) Close() error {
	return t.file.Close()
}
