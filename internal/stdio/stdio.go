// Package stdio exposes the process's standard input in a form whose Close interrupts a
// pending Read.
package stdio

import (
	"os"
	"syscall"
)

// Input is standard input registered with the runtime poller. Nonblocking mode is a
// property of the open file, which the invoking process shares, so Close restores
// blocking mode on the original descriptor.
type Input struct {
	*os.File

	fd       int
	nonblock bool
}

// Stdin returns standard input registered with the runtime poller when the descriptor
// supports it (pipes, sockets, terminals). Regular files fall back to blocking reads,
// which is fine because they always reach EOF.
func Stdin() *Input {
	return open(syscall.Stdin, "/dev/stdin")
}

func open(fd int, name string) *Input {
	dup, err := syscall.Dup(fd)
	if err != nil {
		return &Input{File: os.NewFile(uintptr(fd), name), fd: fd}
	}
	if err := syscall.SetNonblock(dup, true); err != nil {
		syscall.Close(dup)
		return &Input{File: os.NewFile(uintptr(fd), name), fd: fd}
	}
	return &Input{File: os.NewFile(uintptr(dup), name), fd: fd, nonblock: true}
}

// Close closes the duplicate descriptor, which wakes a pending Read, then puts the
// original descriptor back into blocking mode.
func (in *Input) Close() error {
	err := in.File.Close()
	if in.nonblock {
		if rerr := syscall.SetNonblock(in.fd, false); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
