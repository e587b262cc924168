// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/creachadair/duplex/channel"
)

// newPacketPair returns connected packet channels over an in-memory
// connection. A net.Pipe matches each write to a read, so record boundaries
// are preserved as long as records fit the receive buffer.
func newPacketPair(t *testing.T, max int) (lhs, rhs channel.Channel) {
	t.Helper()
	lc, rc := net.Pipe()
	lhs = channel.Packet(lc, max)
	rhs = channel.Packet(rc, max)
	t.Cleanup(func() {
		lhs.Close()
		rhs.Close()
	})
	return
}

func TestPacket(t *testing.T) {
	lhs, rhs := newPacketPair(t, 0)

	want := []string{"hello", "is there anybody in there", "just nod if you can hear me"}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, msg := range want {
			if err := lhs.Send([]byte(msg)); err != nil {
				t.Errorf("Send(%q): unexpected error: %v", msg, err)
			}
		}
	}()

	// Each record must arrive whole and in order.
	for _, msg := range want {
		got, err := rhs.Recv()
		if err != nil {
			t.Fatalf("Recv: unexpected error: %v", err)
		}
		if string(got) != msg {
			t.Errorf("Recv: got %#q, want %#q", got, msg)
		}
	}
	<-done
}

func TestPacketRecordTooLarge(t *testing.T) {
	lhs, _ := newPacketPair(t, 8)

	if err := lhs.Send([]byte("123456789")); err == nil {
		t.Error("Send of an oversized record did not fail")
	} else {
		t.Logf("Send correctly failed: %v", err)
	}
}

func TestPacketEmptyRecord(t *testing.T) {
	lhs, rhs := newPacketPair(t, 16)

	go lhs.Send(nil)
	got, err := rhs.Recv()
	if err != nil {
		t.Fatalf("Recv: unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Recv: got %v, want an empty record", got)
	}
}

func TestPacketCloseRead(t *testing.T) {
	lhs, rhs := newPacketPair(t, 16)

	recvErr := make(chan error, 1)
	go func() {
		_, err := lhs.Recv()
		recvErr <- err
	}()

	if err := channel.CloseRead(lhs); err != nil {
		t.Fatalf("CloseRead: unexpected error: %v", err)
	}
	err := <-recvErr
	if err == nil {
		t.Fatal("Recv after CloseRead did not fail")
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("Recv error: got %v, want %v", err, os.ErrDeadlineExceeded)
	}
	if !channel.IsErrClosing(err) {
		t.Errorf("IsErrClosing(%v) = false, want true", err)
	}

	// The write half must survive: lhs can still send to rhs.
	go lhs.Send([]byte("still here"))
	got, err := rhs.Recv()
	if err != nil {
		t.Fatalf("Recv: unexpected error: %v", err)
	}
	if string(got) != "still here" {
		t.Errorf("Recv: got %#q, want %#q", got, "still here")
	}
}
