// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package duplex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/creachadair/duplex/channel"
	"github.com/creachadair/duplex/metrics"
	"github.com/muesli/cancelreader"
)

// A Session manages a single conversation between a local operator and a
// remote peer over a channel. Use New to construct a session, Start to
// attach it to a channel, and Wait or WaitStatus to collect its outcome
// after the conversation ends.
type Session struct {
	out io.Writer                    // local output sink
	log func(string, ...interface{}) // write debug logs here
	bye []byte                       // farewell record, compared exactly
	m   *metrics.M                   // traffic totals (nil discards)
	in  *lineReader                  // local operator input

	wg sync.WaitGroup // done when both pumps have returned

	mu      sync.Mutex // protects the fields below
	ch      channel.Channel
	flag    *stopFlag
	stat    Status
	closed  bool // the channel was closed early during teardown
	started bool
}

// New constructs a new, unstarted session that reads operator input from in
// and delivers records received from the peer to out. If opts == nil, it
// behaves as if given default options.
//
// Operator input is wrapped in a cancelable reader so that a read can be
// released when the peer ends the conversation. Cancellation works when in
// is backed by a file descriptor (a file, pipe, terminal, or socket); with
// other readers the session may not wind down until a pending read returns.
func New(in io.Reader, out io.Writer, opts *Options) *Session {
	if in == nil {
		panic("nil input reader")
	} else if out == nil {
		panic("nil output sink")
	}
	return &Session{
		out: out,
		log: opts.logger(),
		bye: opts.farewell(),
		m:   opts.metrics(),
		in:  newLineReader(in, opts.maxFrame()),
	}
}

// Start begins a conversation on ch, and returns s to permit chaining. It
// does not block; call Wait or WaitStatus to await the end of the
// conversation. A session conducts at most one conversation; if s was
// already started, Start panics.
func (s *Session) Start(ch channel.Channel) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("session is already started")
	}
	s.started = true
	s.ch = ch
	s.flag = newStopFlag()
	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.inbound(ch) }()
	go func() { defer s.wg.Done(); s.outbound(ch) }()
	return s
}

// inbound pumps records from ch to the output sink until the conversation
// ends. It runs in a goroutine started by Start.
func (s *Session) inbound(ch channel.Channel) {
	for !s.flag.isSet() {
		msg, err := ch.Recv()
		if err != nil {
			if s.flag.isSet() {
				return // teardown already in progress
			}
			if err != io.EOF && !channel.IsErrClosing(err) {
				s.log("Receiving failed: %v", err)
			}
			s.finish(Status{Received: true})
			return
		}
		s.m.Count("recv.records", 1)
		s.m.CountAndSetMax("recv.bytes", int64(len(msg)))

		if len(msg) == 0 {
			// An empty record means the peer has hung up.
			s.log("Peer closed the connection")
			s.finish(Status{Received: true})
			return
		}
		if _, err := fmt.Fprintf(s.out, "%s\n", msg); err != nil {
			s.log("Writing to output sink failed: %v", err)
			s.finish(Status{Err: fmt.Errorf("write output: %w", err), Received: true})
			return
		}
		if bytes.Equal(msg, s.bye) {
			s.log("Received farewell from peer")
			s.finish(Status{Received: true})
			return
		}
	}
}

// outbound pumps operator input lines to ch until the conversation ends. It
// runs in a goroutine started by Start.
func (s *Session) outbound(ch channel.Channel) {
	for !s.flag.isSet() {
		line, err := s.in.readLine()
		if err != nil {
			if s.flag.isSet() || errors.Is(err, cancelreader.ErrCanceled) {
				return // teardown already in progress
			}
			if err == io.EOF {
				s.log("Operator input ended")
			} else {
				s.log("Reading input failed: %v", err)
			}
			s.finish(Status{Sent: true})
			return
		}
		if len(line) == 0 {
			continue // the peer would mistake an empty record for a hangup
		}
		if err := ch.Send(line); err != nil {
			if s.flag.isSet() {
				return
			}
			if channel.IsErrClosing(err) {
				// The peer tore the link down before the send completed.
				s.finish(Status{Sent: true})
			} else {
				s.log("Sending failed: %v", err)
				fmt.Fprintf(s.out, "Send failed: %v\n", err)
				s.finish(Status{Err: fmt.Errorf("send: %w", err), Sent: true})
			}
			return
		}
		s.m.Count("send.records", 1)
		s.m.CountAndSetMax("send.bytes", int64(len(line)))

		if bytes.Equal(line, s.bye) {
			s.log("Sent farewell")
			s.finish(Status{Sent: true})
			return
		}
	}
}

// finish records stat as the final state of the session and interrupts the
// blocking reads of both pumps. Only the first call to finish has any
// effect; it is safe to call from any goroutine.
func (s *Session) finish(stat Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flag == nil || !s.flag.set() {
		return // the session is not running, or teardown has already begun
	}
	s.stat = stat
	s.in.cancel()
	if err := channel.CloseRead(s.ch); err != nil {
		// The channel has no separate read half to shut down. Close the
		// whole channel now so a blocked Recv does not strand the session,
		// and skip the close after the pumps are joined.
		s.ch.Close()
		s.closed = true
	}
}

// Stop ends the session regardless of its current state, interrupting both
// pumps. It does not block for completion; call Wait or WaitStatus to await
// the end of the session. Stopping a session that has already ended, or was
// never started, has no effect.
func (s *Session) Stop() { s.finish(Status{Stopped: true}) }

// Wait blocks until the session ends, closes the channel, and returns the
// error that ended the conversation, or nil if it ended normally. It is
// shorthand for s.WaitStatus().Err.
func (s *Session) Wait() error { return s.WaitStatus().Err }

// WaitStatus blocks until the session ends, closes the channel, and returns
// the resulting status. The channel is not closed until both pumps have
// returned, and is closed only once no matter how often WaitStatus is
// called.
func (s *Session) WaitStatus() Status {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil && !s.closed {
		s.closed = true
		if err := s.ch.Close(); err != nil && s.stat.Err == nil && !channel.IsErrClosing(err) {
			s.stat.Err = err
		}
	}
	return s.stat
}

// Run starts a session on ch that reads operator input from in and delivers
// received records to out, and blocks until the conversation ends. The
// channel is closed before Run returns. It is shorthand for:
//
//	New(in, out, opts).Start(ch).Wait()
func Run(ch channel.Channel, in io.Reader, out io.Writer, opts *Options) error {
	return New(in, out, opts).Start(ch).Wait()
}

// Status is the status value reported by [Session.Wait] and
// [Session.WaitStatus] after a session has ended.
type Status struct {
	Err error // the error that ended the session, or nil

	// Sent reports that the outbound pump ended the conversation: the
	// operator entered the farewell line, operator input was exhausted, or
	// a send failed.
	Sent bool

	// Received reports that the inbound pump ended the conversation: the
	// peer sent a farewell or hung up, the link failed while receiving, or
	// a record could not be delivered to the output sink.
	Received bool

	// Stopped reports that the session was ended by a call to
	// [Session.Stop] before either side said farewell.
	Stopped bool
}

// Success reports whether the session ended without error.
func (s Status) Success() bool { return s.Err == nil }

// A stopFlag coordinates the shutdown of a session. The first call to set
// latches the flag; all subsequent calls have no effect. Both pumps consult
// the flag so that whichever notices the end of the conversation first can
// take its sibling down with it.
type stopFlag struct {
	once sync.Once
	done chan struct{}
}

func newStopFlag() *stopFlag { return &stopFlag{done: make(chan struct{})} }

// set latches the flag and reports whether this call was the first to do so.
func (f *stopFlag) set() (first bool) {
	f.once.Do(func() { close(f.done); first = true })
	return
}

// isSet reports whether the flag has been latched.
func (f *stopFlag) isSet() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
