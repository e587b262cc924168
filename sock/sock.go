// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package sock establishes socket connections for a session to talk over.
//
// It handles connection setup only. The caller wraps the returned net.Conn
// in a channel (see the channel package) and hands that to a session;
// closing the channel closes the connection.
package sock

import (
	"context"
	"net"
	"strings"
)

// Network guesses the network for addr: "tcp" if addr has the form
// host:port, otherwise "unix". Sequenced-packet sockets ("unixpacket")
// cannot be told apart from "unix" by address syntax, so callers wanting
// one must say so explicitly.
func Network(addr string) string {
	if strings.Contains(addr, ":") {
		return "tcp"
	}
	return "unix"
}

// Dial connects to addr on the given network ("tcp", "unix", or
// "unixpacket"). The context governs only the duration of the dial.
func Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// AcceptOne listens on addr for the given network, accepts exactly one
// connection, and closes the listener before returning the accepted
// connection. Ending the context unblocks a pending accept, and AcceptOne
// reports the context's error.
func AcceptOne(ctx context.Context, network, addr string) (net.Conn, error) {
	var lc net.ListenConfig
	lst, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	defer lst.Close()

	// An accept in flight is only released by closing the listener.
	stop := context.AfterFunc(ctx, func() { lst.Close() })
	defer stop()

	conn, err := lst.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}
