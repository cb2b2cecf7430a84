package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipNet(s string) net.Addr {
	ip, n, _ := net.ParseCIDR(s)
	return &net.IPNet{IP: ip, Mask: n.Mask}
}

func TestRestrictive(t *testing.T) {
	up := net.FlagUp

	cases := []struct {
		name   string
		ifaces []Interface
		want   bool
	}{
		{"plain lan", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("192.168.1.10/24")}}}, false},
		{"wireguard", []Interface{{Name: "wg0", Flags: up}}, true},
		{"cgnat address", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.72.3.4/10")}}}, true},
		{"down tunnel", []Interface{{Name: "tun0"}}, false},
		{"loopback", []Interface{{Name: "lo", Flags: up | net.FlagLoopback, Addrs: []net.Addr{ipNet("100.64.0.1/32")}}}, false},
		{"outside cgnat", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.128.0.1/16")}}}, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, restrictive(tc.ifaces), tc.name)
	}
}
