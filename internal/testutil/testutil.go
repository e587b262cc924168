// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package testutil defines internal support code for writing tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creachadair/duplex"
	"github.com/creachadair/duplex/channel"
)

// A Sink is a concurrency-safe io.Writer that accumulates everything
// written to it, standing in for the operator's terminal in tests.
type Sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *Sink) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(data)
}

// String returns everything written to the sink so far.
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Lines returns the lines written to the sink so far, without their
// terminators.
func (s *Sink) Lines() []string {
	text := strings.TrimSuffix(s.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// WaitContains polls until the sink contents contain substr, and fails t if
// that does not happen within a few seconds. Output arrives from a session
// pump asynchronously, so tests that interleave both directions of a
// conversation must sync on delivery before replying.
func (s *Sink) WaitContains(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(s.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("Sink did not receive %#q (have %#q)", substr, s.String())
		}
		time.Sleep(time.Millisecond)
	}
}

// An Input simulates an interactive operator typing lines of input. It is
// backed by a pipe with a real file descriptor, so a session's cancelable
// reader can interrupt a read blocked on it.
type Input struct {
	R *os.File // the read end, to pass to duplex.New

	t *testing.T
	w *os.File
}

// NewInput constructs an Input whose pipe is cleaned up when t ends.
func NewInput(t *testing.T) *Input {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Creating input pipe: %v", err)
	}
	t.Cleanup(func() { r.Close(); w.Close() })
	return &Input{R: r, t: t, w: w}
}

// Type delivers one line of operator input, appending a newline.
func (in *Input) Type(line string) {
	in.t.Helper()
	if _, err := fmt.Fprintln(in.w, line); err != nil {
		in.t.Errorf("Typing %#q failed: %v", line, err)
	}
}

// EOF ends the operator input, as the operator closing their terminal.
func (in *Input) EOF() {
	in.t.Helper()
	if err := in.w.Close(); err != nil {
		in.t.Errorf("Closing input failed: %v", err)
	}
}

// An End is one side of a Pair: a running session together with the
// simulated operator input that feeds it and the sink capturing its output.
type End struct {
	Input *Input
	Out   *Sink
	Sess  *duplex.Session
}

// A Pair couples two running sessions over an in-memory channel pair, one
// session for each end of a conversation. Construct one with StartPair.
type Pair struct {
	Left, Right *End
}

// StartPair starts a session at each end of a direct channel pair, using
// opts for both ends. Both sessions are running when StartPair returns.
func StartPair(t *testing.T, opts *duplex.Options) *Pair {
	t.Helper()
	lch, rch := channel.Direct()
	start := func(ch channel.Channel) *End {
		in := NewInput(t)
		out := new(Sink)
		return &End{Input: in, Out: out, Sess: duplex.New(in.R, out, opts).Start(ch)}
	}
	return &Pair{Left: start(lch), Right: start(rch)}
}

// Wait blocks until both sessions have ended and returns their final status
// values. It fails t if either session is still running after a generous
// timeout, which would otherwise hang the test on a stuck pump.
func (p *Pair) Wait(t *testing.T) (left, right duplex.Status) {
	t.Helper()
	var g errgroup.Group
	g.Go(func() error { left = p.Left.Sess.WaitStatus(); return nil })
	g.Go(func() error { right = p.Right.Sess.WaitStatus(); return nil })

	done := make(chan struct{})
	go func() { defer close(done); g.Wait() }()
	select {
	case <-done:
		return left, right
	case <-time.After(10 * time.Second):
		t.Fatalf("Sessions did not end in time")
	}
	return
}
