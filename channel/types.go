// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"errors"
	"io"
	"sync"
	"time"
)

// A Framing converts a reader and a writer into a Channel with a particular
// message-framing discipline.
type Framing func(io.Reader, io.WriteCloser) Channel

// CloseRead unblocks a pending or future Recv on ch without closing the
// channel, if ch supports doing so. The unblocked Recv reports an error, and
// no further records can be received, but the channel itself remains open
// until Close is called. CloseRead reports errors.ErrUnsupported if ch does
// not have the capability.
//
// All the channel implementations in this package support CloseRead.
func CloseRead(ch Channel) error {
	if cr, ok := ch.(interface{ CloseRead() error }); ok {
		return cr.CloseRead()
	}
	return errors.ErrUnsupported
}

// aLongTimeAgo is a non-zero time in the distant past, used to expire a read
// deadline immediately.
var aLongTimeAgo = time.Unix(1, 0)

// closeReader forces a pending or future Read on r to report an error while
// leaving the write half of the transport intact. Connections are preferred
// to be expired by deadline, which is documented to unblock an in-flight
// Read; transports with a separate read half have it shut down or closed.
func closeReader(r io.Reader) error {
	switch t := r.(type) {
	case interface{ SetReadDeadline(time.Time) error }:
		return t.SetReadDeadline(aLongTimeAgo)
	case interface{ CloseRead() error }:
		return t.CloseRead()
	case io.Closer:
		return t.Close()
	}
	return errors.ErrUnsupported
}

// A halfPipe is one direction of an in-memory channel pair. Either endpoint
// may shut it down, at which point pending and future transfers in that
// direction fail. Shutdown is idempotent.
type halfPipe struct {
	msgs chan []byte

	once sync.Once
	done chan struct{}
}

func newHalfPipe() *halfPipe {
	return &halfPipe{msgs: make(chan []byte), done: make(chan struct{})}
}

func (p *halfPipe) shutDown() { p.once.Do(func() { close(p.done) }) }

func (p *halfPipe) send(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	select {
	case p.msgs <- cp:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

func (p *halfPipe) recv() ([]byte, error) {
	select {
	case msg := <-p.msgs:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	}
}

type direct struct {
	w, r *halfPipe
}

func (d direct) Send(msg []byte) error { return d.w.send(msg) }

func (d direct) Recv() ([]byte, error) { return d.r.recv() }

func (d direct) Close() error { d.w.shutDown(); d.r.shutDown(); return nil }

// CloseRead shuts down the receive direction. The peer's pending and future
// sends fail, as writes do on a closed pipe reader, but the send direction
// remains usable.
func (d direct) CloseRead() error { d.r.shutDown(); return nil }

// Direct returns a pair of synchronous connected channels that pass record
// buffers directly in memory without framing or encoding. Records sent to
// one channel are received by the other, and vice versa.
func Direct() (left, right Channel) {
	lr, rl := newHalfPipe(), newHalfPipe()
	left = direct{w: lr, r: rl}
	right = direct{w: rl, r: lr}
	return
}
