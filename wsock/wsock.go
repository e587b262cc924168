// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package wsock implements a channel over a websocket connection.
//
// Websocket messages preserve record boundaries on their own, so no
// framing discipline is needed; each record travels as one binary message.
// The client end dials a URL, the server end installs a Listener as an
// http.Handler and accepts channels from it.
package wsock

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

// ErrListenerClosed is the error reported by Accept when its listener has
// been closed.
var ErrListenerClosed = errors.New("listener is closed")

// Options control the construction of channels by Dial and NewListener.
// A nil *Options provides sensible defaults.
type Options struct {
	// The HTTP client used by Dial for the handshake request. If nil, the
	// http.DefaultClient is used.
	HTTPClient *http.Client

	// The maximum size in bytes of a received message. A value less than 1
	// applies the websocket default (32 KiB).
	MaxFrame int64
}

func (o *Options) dialOptions() *websocket.DialOptions {
	if o == nil || o.HTTPClient == nil {
		return nil
	}
	return &websocket.DialOptions{HTTPClient: o.HTTPClient}
}

func (o *Options) maxFrame() int64 {
	if o == nil || o.MaxFrame < 1 {
		return 0
	}
	return o.MaxFrame
}

// A Channel carries discrete records over a websocket connection. It
// implements the channel.Channel interface, and supports the read-half
// shutdown probed by channel.CloseRead.
type Channel struct {
	conn *websocket.Conn

	recvs chan []byte   // messages delivered by the read loop
	rerr  error         // the read loop's exit cause, set before recvs closes
	dead  chan struct{} // closed by the read loop when the connection ends

	stopOnce sync.Once
	stop     chan struct{} // closed by CloseRead

	closeOnce sync.Once
	closeErr  error
	done      chan struct{} // closed by Close
}

func newChannel(conn *websocket.Conn, maxFrame int64) *Channel {
	if maxFrame > 0 {
		conn.SetReadLimit(maxFrame)
	}
	c := &Channel{
		conn:  conn,
		recvs: make(chan []byte),
		dead:  make(chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop pulls messages off the connection and hands them to Recv. It
// exits when the connection ends or the read half is shut down, so its
// lifetime is bounded by the channel's.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				err = io.EOF
			}
			c.rerr = err
			close(c.dead)
			close(c.recvs)
			return
		}
		select {
		case c.recvs <- data:
		case <-c.stop:
			return
		}
	}
}

// Send transmits msg to the peer as a single binary message.
func (c *Channel) Send(msg []byte) error {
	return c.conn.Write(context.Background(), websocket.MessageBinary, msg)
}

// Recv blocks until a message is received, the connection ends, or the
// read half is shut down. A normal closure by the peer reports io.EOF.
func (c *Channel) Recv() ([]byte, error) {
	select {
	case data, ok := <-c.recvs:
		if !ok {
			return nil, c.rerr
		}
		return data, nil
	case <-c.stop:
		return nil, net.ErrClosed
	}
}

// CloseRead shuts down the read half of the channel: a pending or future
// Recv stops with net.ErrClosed while Send and Close keep working. The
// peer is not told; it observes the closure when Close runs the handshake.
func (c *Channel) CloseRead() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Close performs a normal-closure handshake with the peer and releases the
// channel. It is safe to call Close multiple times; later calls report the
// same result as the first.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		err := c.conn.Close(websocket.StatusNormalClosure, "channel closed")
		select {
		case <-c.dead:
			// The connection had already ended, either because the peer
			// closed first or because it failed. Either way the outcome was
			// reported by Recv; there is no handshake left to fail here.
			err = nil
		default:
		}
		c.closeErr = err
		close(c.done)
	})
	return c.closeErr
}

// A Listener bridges websocket handshakes into channels. It implements
// http.Handler; install it on the route that clients dial. Each completed
// handshake is held open and delivered to a pending or future Accept.
type Listener struct {
	opts *Options
	inc  chan *Channel

	closeOnce sync.Once
	stopped   chan struct{}
}

// NewListener constructs a listener with the given options.
func NewListener(opts *Options) *Listener {
	return &Listener{opts: opts, inc: make(chan *Channel), stopped: make(chan struct{})}
}

// Accept returns the channel for the next incoming connection. It blocks
// until a connection arrives, ctx ends, or the listener is closed.
func (l *Listener) Accept(ctx context.Context) (*Channel, error) {
	select {
	case ch := <-l.inc:
		return ch, nil
	case <-l.stopped:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the listener. Pending calls of Accept are released,
// handshakes not yet accepted are refused, and channels already accepted
// are unaffected.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.stopped) })
	return nil
}

func (l *Listener) isClosed() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

// ServeHTTP implements the http.Handler interface. It upgrades the request
// to a websocket, delivers the resulting channel to Accept, and holds the
// request open until the channel is closed.
func (l *Listener) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if l.isClosed() {
		http.Error(w, "listener is closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		return // Accept already reported the failure to the client
	}
	ch := newChannel(conn, l.opts.maxFrame())
	select {
	case l.inc <- ch:
		<-ch.done
	case <-l.stopped:
		ch.Close()
	}
}

// Dial connects to a websocket listener at url, which must have the form
// ws://host/path or wss://host/path, and returns the resulting channel.
func Dial(ctx context.Context, url string, opts *Options) (*Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, opts.dialOptions())
	if err != nil {
		return nil, err
	}
	return newChannel(conn, opts.maxFrame()), nil
}
