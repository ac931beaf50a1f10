package info

import (
	"os"
	"runtime"
	"strings"
)

// maximum length of a DHCP host name option we send
const maxHostnameLen = 63

type NodeInfo struct {
	Hostname string
	OS       string
	Arch     string
	Version  string
}

func New() *NodeInfo {
	hostname, _ := os.Hostname()
	return &NodeInfo{
		Hostname: Hostname(hostname),
		OS:       OS(),
		Arch:     runtime.GOARCH,
		Version:  Version,
	}
}

// Hostname reduces name to its first label and to the characters a DHCP
// server will accept in a host name.
func Hostname(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '_' || r == ' ':
			b.WriteByte('-')
		}
		if b.Len() == maxHostnameLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
