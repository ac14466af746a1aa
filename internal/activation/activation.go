// Package activation takes over a listening socket passed in by the service manager.
package activation

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

const (
	envFDs = "LISTEN_FDS"
	envPID = "LISTEN_PID"

	// listenFDsStart is the first descriptor the service manager passes.
	listenFDsStart = 3
)

var ErrNotActivated = errors.New("activation: no sockets passed")

// ListenerFD returns the descriptor to listen on, given the activation environment.
// With n passed descriptors it picks the last one, n+2; a single socket is fd 3.
func ListenerFD(getenv func(string) string, pid int) (int, error) {
	if s := getenv(envPID); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("activation: parsing %s: %w", envPID, err)
		}
		if p != pid {
			return 0, fmt.Errorf("%w: %s is for pid %d", ErrNotActivated, envPID, p)
		}
	}
	s := getenv(envFDs)
	if s == "" {
		return 0, ErrNotActivated
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("activation: parsing %s: %w", envFDs, err)
	}
	if n < 1 {
		return 0, ErrNotActivated
	}
	return listenFDsStart + n - 1, nil
}

// Listener wraps the activated socket in a net.Listener and clears the activation
// environment so child processes do not inherit it.
func Listener() (net.Listener, error) {
	fd, err := ListenerFD(os.Getenv, os.Getpid())
	if err != nil {
		return nil, err
	}
	os.Unsetenv(envFDs)
	os.Unsetenv(envPID)
	os.Unsetenv("LISTEN_FDNAMES")

	f := os.NewFile(uintptr(fd), "LISTEN_FD_"+strconv.Itoa(fd))
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("activation: fd %d is not a listening socket: %w", fd, err)
	}
	return l, nil
}
