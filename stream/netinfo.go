package stream

import (
	"net"
	"strings"
)

const loopbackIP = "127.0.0.1"

// LocalIP picks the IPv4 address a browser on the LAN most likely reaches
// this board on. It is only used for the startup banner, so any failure
// falls back to the loopback address.
func LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return loopbackIP
	}

	best, bestPriority := loopbackIP, -1
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			if p := interfacePriority(iface.Name, iface.Flags); p > bestPriority {
				best, bestPriority = ip4.String(), p
			}
		}
	}
	return best
}

// interfacePriority ranks an interface: up and running first, then up only,
// with wireless preferred over wired.
func interfacePriority(name string, flags net.Flags) int {
	up := flags&net.FlagUp != 0
	running := flags&net.FlagRunning != 0

	switch {
	case up && running:
		switch {
		case strings.HasPrefix(name, "wlan"):
			return 120
		case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
			return 115
		default:
			return 105
		}
	case up:
		switch {
		case strings.HasPrefix(name, "wlan"):
			return 60
		case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
			return 58
		default:
			return 50
		}
	default:
		return 10
	}
}
