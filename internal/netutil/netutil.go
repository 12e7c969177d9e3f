// Package netutil inspects the local network interfaces.
package netutil

import (
	"net"
	"strings"
)

// cgnat covers 100.64.0.0/10, used by carrier-grade NAT, Tailscale and
// Cloudflare WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Interface is the slice of net.Interface this package reads.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []net.IP
}

// Interfaces lists the host's interfaces with their addresses. Interfaces
// whose addresses cannot be read are returned without any.
func Interfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		it := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				if ip := ipOf(addr); ip != nil {
					it.Addrs = append(it.Addrs, ip)
				}
			}
		}
		out = append(out, it)
	}
	return out, nil
}

func ipOf(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// LANAddrs returns the IPv4 addresses other machines on the network can
// reach this host on. Loopback, down and link-local addresses are skipped.
func LANAddrs(ifaces []Interface) []net.IP {
	var out []net.IP
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback {
			continue
		}
		for _, ip := range iface.Addrs {
			v4 := ip.To4()
			if v4 == nil || v4.IsLinkLocalUnicast() || v4.IsLoopback() {
				continue
			}
			out = append(out, v4)
		}
	}
	return out
}

// BehindTunnel reports whether the host looks to be behind a VPN or CGNAT,
// where a direct peer link often fails without a TURN relay.
func BehindTunnel(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range []string{"tun", "tap", "wg", "ppp", "warp"} {
			if strings.Contains(name, hint) {
				return true
			}
		}

		for _, ip := range iface.Addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}
