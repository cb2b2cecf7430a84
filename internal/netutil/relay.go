package netutil

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10. Cloudflare WARP, Tailscale and carrier-grade
// NATs hand out addresses from it.
var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Interface is the part of a network interface relay detection inspects.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// ShouldForceRelay reports whether this host is likely behind a VPN or
// CGNAT, where direct peer paths rarely work and TURN should be forced.
func ShouldForceRelay() bool {
	ifaces, err := systemInterfaces()
	if err != nil {
		return false
	}
	return restrictive(ifaces)
}

func systemInterfaces() ([]Interface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(raw))
	for _, iface := range raw {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return out, nil
}

func restrictive(ifaces []Interface) bool {
	for _, iface := range ifaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, prefix := range tunnelNames {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}

		for _, addr := range iface.Addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
