// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header defines a framing that transmits and receives records using a
// header prefix similar to HTTP, in which the value of the string is used to
// describe the content encoding.
//
// Specifically, each record is sent in the format:
//
//	Content-Type: <mime-type>\r\n
//	Content-Length: <nbytes>\r\n
//	\r\n
//	<payload>
//
// The length (nbytes) is encoded as decimal digits. For example, given a
// mimeType value "text/plain", the record "hi\n" is transmitted as:
//
//	Content-Type: text/plain\r\n
//	Content-Length: 3\r\n
//	\r\n
//	hi\n
func Header(mimeType string) Framing {
	return func(r io.Reader, wc io.WriteCloser) Channel {
		return &hdr{
			mtype: mimeType,
			r:     r,
			wc:    wc,
			rd:    bufio.NewReader(r),
			buf:   bytes.NewBuffer(nil),
		}
	}
}

// An hdr implements Channel. Records sent on a hdr channel are framed as a
// header/body transaction, similar to HTTP.
type hdr struct {
	mtype string
	r     io.Reader
	wc    io.WriteCloser
	rd    *bufio.Reader
	buf   *bytes.Buffer
}

// Send implements part of the Channel interface.
func (h *hdr) Send(msg []byte) error {
	h.buf.Reset()
	fmt.Fprintf(h.buf, "Content-Type: %s\r\n", h.mtype)
	fmt.Fprintf(h.buf, "Content-Length: %d\r\n\r\n", len(msg))
	h.buf.Write(msg)
	_, err := h.wc.Write(h.buf.Next(h.buf.Len()))
	return err
}

// Recv implements part of the Channel interface.
func (h *hdr) Recv() ([]byte, error) {
	p := make(map[string]string)
	for {
		raw, err := h.rd.ReadString('\n')
		line := strings.TrimRight(raw, "\r\n")
		if line != "" {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, errors.New("invalid header line")
			}
			p[strings.ToLower(name)] = strings.TrimSpace(value)
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		} else if line == "" {
			break
		}
	}

	// Verify that the content-type matches what we expect.
	if ctype, ok := p["content-type"]; !ok || ctype != h.mtype {
		return nil, errors.New("invalid content-type")
	}

	// Parse out the required content-length field. Unknown header fields are
	// ignored.
	clen, ok := p["content-length"]
	if !ok {
		return nil, errors.New("missing required content-length")
	}
	size, err := strconv.Atoi(clen)
	if err != nil {
		return nil, fmt.Errorf("invalid content-length: %v", err)
	} else if size < 0 {
		return nil, errors.New("negative content-length")
	}

	// We need ReadFull here because the buffered reader may not have a big
	// enough buffer to deliver the whole record, and will only issue a single
	// read to the underlying source.
	data := make([]byte, size)
	if _, err := io.ReadFull(h.rd, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Close implements part of the Channel interface.
func (h *hdr) Close() error { return h.wc.Close() }

// CloseRead unblocks a pending Recv without closing the channel.
func (h *hdr) CloseRead() error { return closeReader(h.r) }
