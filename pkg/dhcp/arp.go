package dhcp

import (
	"fmt"
	"net"

	"github.com/j-keck/arping"
)

// ARPCheck probes whether something already answers for ip on iface.
// A reply means the address is taken; a timeout means it is clear.
func ARPCheck(iface *net.Interface, ip net.IP) (bool, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return false, fmt.Errorf("ARP check only valid for IPv4, got: %v", ip)
	}

	_, _, err := arping.PingOverIface(ip4, *iface)
	switch err {
	case nil:
		return true, nil
	case arping.ErrTimeout:
		return false, nil
	default:
		return false, err
	}
}

// ProbeOverIface adapts ARPCheck to the lease manager's probe hook,
// skipping loopback where ARP never resolves.
func ProbeOverIface(iface *net.Interface) ProbeFunc {
	if iface == nil || iface.Name == "lo" || iface.Name == "lo0" {
		return nil
	}
	return func(ip net.IP) (bool, error) {
		return ARPCheck(iface, ip)
	}
}
