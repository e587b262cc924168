// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
)

// Varint constructs a Channel that transmits and receives records on r and
// wc, each record prefixed by its length encoded as a varint as defined by
// the encoding/binary package. Unlike Line, a varint channel is fully
// binary-clean: records may contain any bytes, including none at all.
func Varint(r io.Reader, wc io.WriteCloser) Channel {
	return &varint{r: r, wc: wc, rd: bufio.NewReader(r), buf: bytes.NewBuffer(nil)}
}

// A varint implements Channel with length-prefixed records.
type varint struct {
	r   io.Reader
	wc  io.WriteCloser
	rd  *bufio.Reader
	buf *bytes.Buffer
}

// Send implements part of the Channel interface.
func (c *varint) Send(msg []byte) error {
	var ln [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(ln[:], uint64(len(msg)))
	c.buf.Reset()
	c.buf.Write(ln[:n])
	c.buf.Write(msg)
	_, err := c.wc.Write(c.buf.Next(c.buf.Len()))
	return err
}

// Recv implements part of the Channel interface.
func (c *varint) Recv() ([]byte, error) {
	ln, err := binary.ReadUvarint(c.rd)
	if err != nil {
		return nil, err
	}
	out := make([]byte, int(ln))
	nr, err := io.ReadFull(c.rd, out)
	return out[:nr], err
}

// Close implements part of the Channel interface.
func (c *varint) Close() error { return c.wc.Close() }

// CloseRead unblocks a pending Recv without closing the channel.
func (c *varint) CloseRead() error { return closeReader(c.r) }
