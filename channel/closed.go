// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsErrClosing reports whether err is an error that arises in the ordinary
// course of a connection shutting down: end of input, a connection already
// closed or reset by its peer, or a read canceled or expired by CloseRead.
// Callers can use it to distinguish teardown noise from a real failure.
func IsErrClosing(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}
	return false
}
