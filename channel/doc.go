// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package channel defines the channel.Channel interface, and provides
// implementations of it over byte streams, sequenced-packet connections,
// and in-memory pipes.
//
// A Channel carries discrete data records between two endpoints of a
// duplex connection. Transports that preserve message boundaries (for
// example sequenced-packet sockets or websockets) need no additional
// structure, and are wrapped directly (see Packet). Byte-stream
// transports require a framing discipline to recover record boundaries;
// the Framing values defined here (Line, Varint, Header) each construct
// a Channel with a particular discipline over a reader and a writer.
package channel

// A Channel represents the ability to transmit and receive data records.  A
// channel does not interpret the contents of a record, but may add and remove
// framing so that records can be embedded in higher-level protocols.  Send
// and Recv may be called concurrently with each other, but the methods of a
// Channel are not otherwise safe for concurrent use.
type Channel interface {
	// Send transmits a record on the channel.
	Send([]byte) error

	// Recv returns the next available record from the channel.  If no further
	// records are available, it returns io.EOF.
	Recv() ([]byte, error)

	// Close shuts down the channel, after which no further records may be
	// sent or received.
	Close() error
}
