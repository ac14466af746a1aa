package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	EnvAddr     = "NMPROXY_ADDR"
	EnvTarget   = "NMPROXY_TARGET"
	EnvLogLevel = "NMPROXY_LOG_LEVEL"
	EnvLogFile  = "NMPROXY_LOG_FILE"
)

// Client configures the initiating side. It comes from the environment only, because
// the client's command line is forwarded untouched to the target.
type Client struct {
	// Addr is a unix socket path or a ws:// or wss:// URL.
	Addr     string
	Target   string
	LogLevel string
	LogFile  string
}

// DefaultSocket is the per-user daemon socket.
func DefaultSocket() string {
	return fmt.Sprintf("/run/user/%d/nmp.sock", os.Getuid())
}

// ClientFromEnv builds the client configuration. program is the client's argv[0]; its
// file name is the default target.
func ClientFromEnv(getenv func(string) string, program string) Client {
	c := Client{
		Addr:     getenv(EnvAddr),
		Target:   getenv(EnvTarget),
		LogLevel: getenv(EnvLogLevel),
		LogFile:  getenv(EnvLogFile),
	}
	if c.Addr == "" {
		c.Addr = DefaultSocket()
	}
	if c.Target == "" {
		c.Target = filepath.Base(program)
	}
	return c
}
