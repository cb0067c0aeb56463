package rpc

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// ListenAddress formats the listen address for a port on all interfaces.
func ListenAddress(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

func parseListenAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", errors.New("rpc listen address is required")
	}
	trimmed = strings.TrimPrefix(trimmed, "tcp://")
	if trimmed == "" {
		return "", errors.New("rpc listen address tcp host is empty")
	}
	return trimmed, nil
}

func normalizeTargetAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", errors.New("rpc address is required")
	}
	if strings.HasPrefix(trimmed, "tcp://") {
		host := strings.TrimPrefix(trimmed, "tcp://")
		if host == "" {
			return "", errors.New("rpc tcp address is empty")
		}
		return host, nil
	}
	return trimmed, nil
}
