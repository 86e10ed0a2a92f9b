package util

import (
	"encoding/binary"
	"fmt"
	"net"
)

// NthAddress returns the nth IPv4 address inside cidr, counting up from
// the network base address. n=0 is the base address itself.
func NthAddress(cidr string, n int) (string, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("failed to parse CIDR %s: %v", cidr, err)
	}

	base := network.IP.To4()
	if base == nil {
		return "", fmt.Errorf("not an IPv4 CIDR: %s", cidr)
	}

	addr := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(addr, binary.BigEndian.Uint32(base)+uint32(n))
	if !network.Contains(addr) {
		return "", fmt.Errorf("address %s is outside %s", addr, cidr)
	}
	return addr.String(), nil
}

// CIDRContains reports whether addr parses as an IP address inside cidr.
func CIDRContains(cidr, addr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return network.Contains(ip)
}
