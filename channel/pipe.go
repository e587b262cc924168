// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import "io"

// Pipe creates a pair of connected in-memory channels using the specified
// framing discipline. Pipe will panic if framing == nil.
func Pipe(framing Framing) (left, right Channel) {
	lr, rw := io.Pipe()
	rr, lw := io.Pipe()
	left = framing(lr, lw)
	right = framing(rr, rw)
	return
}
