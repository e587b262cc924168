// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/creachadair/duplex/channel"
)

func testSendRecv(t *testing.T, s, r channel.Channel, msg string) {
	synctest.Test(t, func(t *testing.T) {
		var wg sync.WaitGroup
		var sendErr, recvErr error
		var data []byte

		wg.Add(2)
		go func() {
			defer wg.Done()
			data, recvErr = r.Recv()
		}()
		go func() {
			defer wg.Done()
			sendErr = s.Send([]byte(msg))
		}()
		wg.Wait()

		if sendErr != nil {
			t.Errorf("Send(%q): unexpected error: %v", msg, sendErr)
		}
		if recvErr != nil {
			t.Errorf("Recv(): unexpected error: %v", recvErr)
		}
		if got := string(data); got != msg {
			t.Errorf("Recv():\ngot  %#q\nwant %#q", got, msg)
		}
	})
}

const message1 = `hail and well met, peer`
const message2 = `fare thee well (but not yet)`

func TestDirect(t *testing.T) {
	lhs, rhs := channel.Direct()
	defer lhs.Close()
	defer rhs.Close()

	testSendRecv(t, lhs, rhs, message1)
	testSendRecv(t, rhs, lhs, message2)
}

func TestDirectClosed(t *testing.T) {
	lhs, rhs := channel.Direct()
	defer rhs.Close()
	lhs.Close() // immediately

	if err := rhs.Send([]byte("nonsense")); err == nil {
		t.Error("Send on closed channel did not fail")
	} else {
		t.Logf("Send correctly failed: %v", err)
	}
}

var tests = []struct {
	name    string
	framing channel.Framing
}{
	{"Line", channel.Line},
	{"Varint", channel.Varint},
	{"NoMIME", channel.Header("")},
	{"Header", channel.Header("text/plain")},
}

// N.B. None of these contain a newline, since the Line framing cannot carry
// an embedded line terminator.
var messages = []string{
	message1,
	message2,
	"bye",
	"17",
	"applejack",
	"    ",
	"xy z z y",
	"café au lait ☕",

	// Include a long message to ensure size-dependent cases get exercised.
	strings.Repeat("ABCDefghIJKLmnopQRSTuvwxYZ!-", 8000) + "END",
}

func TestChannelTypes(t *testing.T) {
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			lhs, rhs := channel.Pipe(test.framing)
			defer lhs.Close()
			defer rhs.Close()

			for i, msg := range messages {
				n := strconv.Itoa(i + 1)
				t.Run("LR-"+n, func(t *testing.T) {
					testSendRecv(t, lhs, rhs, msg)
				})
				t.Run("RL-"+n, func(t *testing.T) {
					testSendRecv(t, rhs, lhs, msg)
				})
			}
		})
	}
}

func TestEmptyRecord(t *testing.T) {
	// The Line framing is excluded: an empty record is indistinguishable from
	// its terminator and is skipped by Recv.
	t.Run("Varint", func(t *testing.T) {
		lhs, rhs := channel.Pipe(channel.Varint)
		defer lhs.Close()
		defer rhs.Close()

		testSendRecv(t, lhs, rhs, "")
	})
	t.Run("Header", func(t *testing.T) {
		lhs, rhs := channel.Pipe(channel.Header("text/plain"))
		defer lhs.Close()
		defer rhs.Close()

		testSendRecv(t, lhs, rhs, "")
	})
	t.Run("Direct", func(t *testing.T) {
		lhs, rhs := channel.Direct()
		defer lhs.Close()
		defer rhs.Close()

		testSendRecv(t, lhs, rhs, "")
	})
}

func TestLineEdge(t *testing.T) {
	t.Run("RejectNewline", func(t *testing.T) {
		lhs, rhs := channel.Pipe(channel.Line)
		defer lhs.Close()
		defer rhs.Close()

		if err := lhs.Send([]byte("two\nlines")); err == nil {
			t.Error("Send with embedded newline did not fail")
		}
	})
	t.Run("TrimCR", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			lhs, rhs := channel.Pipe(channel.Line)
			defer lhs.Close()
			defer rhs.Close()

			// Simulate a CRLF peer by sending a record ending in CR, which
			// the wire then terminates with LF.
			go lhs.Send([]byte("howdy\r"))
			got, err := rhs.Recv()
			if err != nil {
				t.Fatalf("Recv: unexpected error: %v", err)
			}
			if string(got) != "howdy" {
				t.Errorf("Recv: got %#q, want %#q", got, "howdy")
			}
		})
	})
	t.Run("SkipEmpty", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			lhs, rhs := channel.Pipe(channel.Line)
			defer lhs.Close()
			defer rhs.Close()

			go func() {
				lhs.Send([]byte("\r")) // an empty line, once framed
				lhs.Send([]byte("real"))
			}()
			got, err := rhs.Recv()
			if err != nil {
				t.Fatalf("Recv: unexpected error: %v", err)
			}
			if string(got) != "real" {
				t.Errorf("Recv: got %#q, want %#q", got, "real")
			}
		})
	})
}

func TestCloseRead(t *testing.T) {
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				lhs, rhs := channel.Pipe(test.framing)
				defer lhs.Close()
				defer rhs.Close()

				recvErr := make(chan error, 1)
				go func() {
					_, err := lhs.Recv()
					recvErr <- err
				}()
				synctest.Wait() // ensure the Recv is in flight

				if err := channel.CloseRead(lhs); err != nil {
					t.Fatalf("CloseRead: unexpected error: %v", err)
				}
				if err := <-recvErr; err == nil {
					t.Error("Recv after CloseRead did not fail")
				}

				// The write half must survive: lhs can still send to rhs.
				go lhs.Send([]byte(message1))
				got, err := rhs.Recv()
				if err != nil {
					t.Fatalf("Recv: unexpected error: %v", err)
				}
				if string(got) != message1 {
					t.Errorf("Recv: got %#q, want %#q", got, message1)
				}
			})
		})
	}

	t.Run("Direct", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			lhs, rhs := channel.Direct()
			defer lhs.Close()
			defer rhs.Close()

			recvErr := make(chan error, 1)
			go func() {
				_, err := lhs.Recv()
				recvErr <- err
			}()
			synctest.Wait()

			if err := channel.CloseRead(lhs); err != nil {
				t.Fatalf("CloseRead: unexpected error: %v", err)
			}
			if err := <-recvErr; err == nil {
				t.Error("Recv after CloseRead did not fail")
			}
		})
	})

	t.Run("Unsupported", func(t *testing.T) {
		if err := channel.CloseRead(plainChannel{}); !errors.Is(err, errors.ErrUnsupported) {
			t.Errorf("CloseRead: got %v, want %v", err, errors.ErrUnsupported)
		}
	})
}

// plainChannel is a Channel with no optional capabilities.
type plainChannel struct{}

func (plainChannel) Send([]byte) error { return nil }

func (plainChannel) Recv() ([]byte, error) { return nil, nil }

func (plainChannel) Close() error { return nil }
