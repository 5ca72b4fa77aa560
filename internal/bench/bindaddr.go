package bench

import (
	"errors"
	"net"
	"sort"
	"strings"
)

// ErrNoBindAddress means auto-detection was requested but no local interface
// carries a private address. Listening on every interface would defeat the
// point of asking for tunnel-side binding, so this is fatal.
var ErrNoBindAddress = errors.New("no tunnel-side bind address found")

// netInterfaces is swapped out in tests.
var netInterfaces = net.Interfaces

// interfaceAddrs is swapped out in tests.
var interfaceAddrs = func(iface *net.Interface) ([]net.Addr, error) {
	return iface.Addrs()
}

// tunnelIfacePrefixes rank interfaces that usually carry the tunnel's inner
// address. Checked in order; everything else comes after, sorted by name.
var tunnelIfacePrefixes = []string{"wg", "tun", "ipsec"}

// AutoDetectBindAddr scans local interfaces for an IPv4 address inside the
// private blocks, preferring tunnel-like interface names. First match wins,
// deterministically.
func AutoDetectBindAddr() (string, error) {
	ifaces, err := netInterfaces()
	if err != nil {
		return "", err
	}

	sort.SliceStable(ifaces, func(i, j int) bool {
		ri, rj := ifaceRank(ifaces[i].Name), ifaceRank(ifaces[j].Name)
		if ri != rj {
			return ri < rj
		}
		return ifaces[i].Name < ifaces[j].Name
	})

	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := interfaceAddrs(&iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipnet.IP.To4(); ip != nil && ip.IsPrivate() {
				return ip.String(), nil
			}
		}
	}
	return "", ErrNoBindAddress
}

func ifaceRank(name string) int {
	for i, prefix := range tunnelIfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return i
		}
	}
	return len(tunnelIfacePrefixes)
}
