// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"fmt"
	"net"
)

// DefaultMaxPacket is the default maximum record size for a packet channel.
// It is the default MTU of a classic Bluetooth L2CAP channel, the transport
// this discipline was built for.
const DefaultMaxPacket = 672

// Packet constructs a Channel over conn, whose transport must preserve
// message boundaries (for example a SOCK_SEQPACKET socket such as a
// "unixpacket" connection, or a Bluetooth L2CAP channel). No framing is
// added: each Send transmits its record as one message, and each Recv
// returns one received message.
//
// Records are bounded to max bytes; Send rejects larger records, and a Recv
// of a longer message truncates it to max bytes, as a sequenced-packet read
// with a short buffer does. If max <= 0, DefaultMaxPacket is used.
func Packet(conn net.Conn, max int) Channel {
	if max <= 0 {
		max = DefaultMaxPacket
	}
	return &packet{conn: conn, buf: make([]byte, max)}
}

// A packet implements Channel over a message-preserving net.Conn.
type packet struct {
	conn net.Conn
	buf  []byte // fixed receive buffer, len(buf) == max record size
}

// Send implements part of the Channel interface.
func (p *packet) Send(msg []byte) error {
	if len(msg) > len(p.buf) {
		return fmt.Errorf("packet: record too large (%d > %d bytes)", len(msg), len(p.buf))
	}
	_, err := p.conn.Write(msg)
	return err
}

// Recv implements part of the Channel interface. A zero-length message is
// returned as an empty (non-nil) record.
func (p *packet) Recv() ([]byte, error) {
	n, err := p.conn.Read(p.buf)
	if n > 0 {
		// The receive buffer is reused, so copy the record out. An error with
		// data is deferred; the connection will report it again on the next
		// read.
		out := make([]byte, n)
		copy(out, p.buf[:n])
		return out, nil
	} else if err != nil {
		return nil, err
	}
	return []byte{}, nil
}

// Close implements part of the Channel interface.
func (p *packet) Close() error { return p.conn.Close() }

// CloseRead unblocks a pending Recv without closing the connection. If the
// connection has a separate read half it is shut down, so the Recv reports
// io.EOF; otherwise an expired read deadline is set.
func (p *packet) CloseRead() error {
	if cr, ok := p.conn.(interface{ CloseRead() error }); ok {
		return cr.CloseRead()
	}
	return p.conn.SetReadDeadline(aLongTimeAgo)
}
