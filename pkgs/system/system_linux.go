package system

import (
	"bytes"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// https://man7.org/linux/man-pages/man7/netdevice.7.html
type ifReq [40]byte

// Ioctl https://man7.org/linux/man-pages/man2/ioctl.2.html
func Ioctl(fd uintptr, request uintptr, argp uintptr) error {
	_, _, err := unix.Syscall(unix.SYS_IOCTL, fd, request, argp)
	if err != 0 {
		return os.NewSyscallError("ioctl", err)
	}
	return nil
}

// TapName asks the kernel which interface the tun/tap descriptor fd is
// bound to.
func TapName(fd uintptr) (string, error) {
	var ifr ifReq
	if err := Ioctl(fd, unix.TUNGETIFF, uintptr(unsafe.Pointer(&ifr[0]))); err != nil {
		return "", err
	}

	name := ifr[:unix.IFNAMSIZ]
	if i := bytes.IndexByte(name, 0); i != -1 {
		name = name[:i]
	}
	return string(name), nil
}
