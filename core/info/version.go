package info

import (
	"runtime"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

func OS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	default:
		return runtime.GOOS
	}
}
