package device

import "github.com/pkg/errors"

var ErrUnsupported = errors.New("driver not supported on this platform")

// Driver is an Ethernet controller as seen by the frame pipeline.
type Driver interface {
	// Reset puts the controller into a known state.
	Reset() error
	// SetPromiscuous makes the controller accept every frame on the wire.
	SetPromiscuous(on bool) error
	// Poll checks for a pending frame and, if there is one, passes it to
	// handle. frame is only valid for the duration of the call. Poll may
	// wait up to the driver's poll timeout.
	Poll(handle func(frame []byte)) error
	// Transmit puts frame on the wire. It has no failure return; drivers
	// log what they cannot send.
	Transmit(frame []byte)
	// Close releases the controller.
	Close() error
}

// LinkReporter is implemented by drivers that can sense the physical
// carrier. Drivers without it are assumed to have link once reset and
// promiscuous setup succeed.
type LinkReporter interface {
	LinkUp() bool
}

// LinkState reports the carrier of d, falling back to up when d cannot
// tell.
func LinkState(d Driver) bool {
	if r, ok := d.(LinkReporter); ok {
		return r.LinkUp()
	}
	return true
}
