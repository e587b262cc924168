// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package duplex

import (
	"bufio"
	"bytes"
	"io"

	"github.com/muesli/cancelreader"
)

// A lineReader delivers operator input one line at a time, bounded to a
// maximum length, with the line terminator (LF or CRLF) stripped. Lines
// longer than the bound are delivered as multiple full-length reads with no
// bytes lost. A blocked or future read can be released with cancel.
type lineReader struct {
	cr   cancelreader.CancelReader
	rd   *bufio.Reader
	max  int
	rest []byte // remainder of an overlong line, delivered before reading more
}

func newLineReader(r io.Reader, max int) *lineReader {
	cr, err := cancelreader.NewReader(r)
	if err != nil {
		// No cancellation mechanism is available for this reader; reads
		// proceed, but cancel becomes a no-op.
		cr = rawReader{r}
	}
	return &lineReader{cr: cr, rd: bufio.NewReader(cr), max: max}
}

// readLine returns the next line of input. It blocks until a full line is
// available, the input ends (io.EOF), the read fails, or the reader is
// canceled (cancelreader.ErrCanceled).
func (r *lineReader) readLine() ([]byte, error) {
	if len(r.rest) > 0 {
		line := r.rest[:min(len(r.rest), r.max)]
		r.rest = r.rest[len(line):]
		return line, nil
	}

	line, isPrefix, err := r.rd.ReadLine()
	if err != nil {
		return nil, err
	}
	full := append([]byte(nil), line...)
	for isPrefix {
		// The line exceeds the buffer; collect the rest of it. An error here
		// is deferred: it will be reported again by the next read.
		line, isPrefix, err = r.rd.ReadLine()
		if err != nil {
			break
		}
		full = append(full, line...)
	}
	full = bytes.TrimSuffix(full, []byte("\r")) // unterminated final line case

	head := full[:min(len(full), r.max)]
	r.rest = full[len(head):]
	return head, nil
}

// cancel releases a pending or future readLine, which reports
// cancelreader.ErrCanceled. It reports whether the underlying reader
// supports cancellation.
func (r *lineReader) cancel() bool { return r.cr.Cancel() }

// rawReader satisfies cancelreader.CancelReader for readers that cannot be
// canceled.
type rawReader struct{ io.Reader }

func (rawReader) Cancel() bool { return false }

func (r rawReader) Close() error {
	if c, ok := r.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
