// Package discovery centralizes service address conventions.
package discovery

import (
	"net"
	"strconv"
	"strings"
)

const (
	// ServiceIntelligence is the intelligence gRPC service identity.
	ServiceIntelligence = "intelligence"
)

var grpcPorts = map[string]int{
	ServiceIntelligence: 50052,
}

// grpcPort returns the conventional gRPC port for a service, or 0.
func grpcPort(service string) int {
	return grpcPorts[strings.TrimSpace(service)]
}

// LocalGRPCAddr returns the loopback gRPC address for a service, used by
// probes running next to the server.
func LocalGRPCAddr(service string) string {
	return addr("localhost", grpcPort(service))
}

// OrLocalGRPCAddr returns value when set, otherwise the loopback address.
func OrLocalGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return LocalGRPCAddr(service)
}

func addr(host string, port int) string {
	if host == "" || port <= 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
