package net

import (
	"fmt"
	"net"
)

// EphemeralTCPAddr returns a loopback address with a currently free port.
func EphemeralTCPAddr() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().String(), nil
}
