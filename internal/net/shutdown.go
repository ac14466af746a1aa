package net

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Shutdown shuts down both directions of c and closes it. Shutting down a connection
// the peer already closed is not an error.
func Shutdown(c io.Closer) error {
	var errs []error
	if hc, ok := c.(halfCloser); ok {
		errs = append(errs, hc.CloseRead(), hc.CloseWrite())
	}
	errs = append(errs, c.Close())

	var out []error
	for _, err := range errs {
		if err != nil && !IsClosed(err) {
			out = append(out, err)
		}
	}
	return errors.Join(out...)
}

// IsClosed reports whether err only says the connection is already gone.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
