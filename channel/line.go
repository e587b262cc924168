// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Line constructs a Channel that transmits and receives records on r and wc
// with line framing: each record is terminated by a Unicode LF (10). Because
// the terminator has no escape, a record containing a newline cannot be
// framed, and Send reports an error for one. Empty lines are an artifact of
// the framing and are skipped by Recv.
func Line(r io.Reader, wc io.WriteCloser) Channel {
	return &line{r: r, wc: wc, rd: bufio.NewReader(r)}
}

// A line implements Channel with newline-terminated records.
type line struct {
	r  io.Reader
	wc io.WriteCloser
	rd *bufio.Reader
}

// Send implements part of the Channel interface.
func (c *line) Send(msg []byte) error {
	if bytes.IndexByte(msg, '\n') >= 0 {
		return errors.New("line: record contains a newline")
	}
	out := make([]byte, len(msg)+1)
	copy(out, msg)
	out[len(msg)] = '\n'
	_, err := c.wc.Write(out)
	return err
}

// Recv implements part of the Channel interface.
func (c *line) Recv() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := c.rd.ReadSlice('\n')
		buf.Write(chunk)
		if err == bufio.ErrBufferFull {
			continue // incomplete line
		} else if err != nil {
			// Partial data before a read failure is surfaced with the error.
			return buf.Bytes(), err
		}
		msg := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
		msg = bytes.TrimSuffix(msg, []byte("\r")) // tolerate CRLF peers
		if len(msg) == 0 {
			buf.Reset()
			continue // skip empty lines
		}
		return msg, nil
	}
}

// Close implements part of the Channel interface.
func (c *line) Close() error { return c.wc.Close() }

// CloseRead unblocks a pending Recv without closing the channel.
func (c *line) CloseRead() error { return closeReader(c.r) }
