package utils

import (
	"strconv"
	"strings"
)

// PortFromAddress extracts the port from an OS-reported socket address by
// taking the final colon-delimited segment. This handles IPv4, bracketed and
// unbracketed IPv6, and interface-scoped forms alike. Malformed or wildcard
// addresses yield 0 rather than an error.
func PortFromAddress(addr string) int {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 || idx == len(addr)-1 {
		return 0
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || port < 0 {
		return 0
	}
	return port
}

// HostFromAddress returns the address with its final colon-delimited port
// segment removed, stripping IPv6 brackets.
func HostFromAddress(addr string) string {
	host := addr
	if idx := strings.LastIndexByte(addr, ':'); idx >= 0 {
		host = addr[:idx]
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return host
}
