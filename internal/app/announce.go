package app

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"capd/internal/domain"
)

var errNoAnnounceAddress = errors.New("no non-loopback IPv4 address found")

// ResolveAnnounceAddress returns the host announced to the registry. The value
// auto picks the first non-loopback IPv4 address of the host.
func ResolveAnnounceAddress(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value != "" && !strings.EqualFold(value, domain.DefaultAnnounceAddress) {
		return value, nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}
	return firstIPv4(addrs)
}

func firstIPv4(addrs []net.Addr) (string, error) {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", errNoAnnounceAddress
}
