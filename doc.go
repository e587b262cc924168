// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

/*
Package duplex implements a bidirectional chat-style session over a single
connection carrying discrete data records.

A session couples two concurrent pumps over one channel.Channel: an inbound
pump that receives records from the peer and writes them to a local output
sink, and an outbound pump that reads lines of operator input and transmits
each one as a record. The session ends when either side says farewell (the
record "bye" by default), when the peer disconnects, when a transmit fails,
or when Stop is called; whichever pump notices first latches the session
state, interrupts its sibling's blocking read, and both pumps wind down. The
channel is closed exactly once, after both pumps have returned.

# Usage

Construct a session over an operator input source and an output sink, start
it over a connected channel, and wait for it to end:

	sess := duplex.New(os.Stdin, os.Stdout, nil)
	if err := sess.Start(ch).Wait(); err != nil {
		log.Fatalf("Session failed: %v", err)
	}

Or equivalently, for the common case:

	err := duplex.Run(ch, os.Stdin, os.Stdout, nil)

The channel is obtained from a transport collaborator; see the channel,
sock, wsock, and bluez packages for implementations over in-memory pipes,
stream and sequenced-packet sockets, websockets, and Bluetooth.

# Termination

All the ways a session can end converge on the same path, and each is
reported in the Status returned by WaitStatus:

  - the operator enters the farewell line: it is transmitted so the peer
    sees it too, and Status.Sent is set;
  - the peer transmits the farewell, or disconnects, or the connection
    fails while receiving: Status.Received is set (a dead link is a normal
    way for a conversation to end, not an error);
  - a transmit fails: the operator is told on the output sink, and the
    error is recorded in Status.Err;
  - Stop is called: Status.Stopped is set.

A received farewell is forwarded to the output sink before the session
ends, so the operator sees the peer leave.

# Cancellation

A pump blocked in a read must not hold the session open after its sibling
has ended it. Both blocking reads are therefore interruptible: operator
input is wrapped in a cancelable reader (an in-flight read on a file,
pipe, terminal, or socket unblocks immediately), and the channel read half
is shut down via channel.CloseRead, leaving the channel itself open until
the final close. Input readers that are none of those things may delay
teardown until their pending read returns; see New.
*/
package duplex
