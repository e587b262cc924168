// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package duplex_test

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/creachadair/duplex"
	"github.com/creachadair/duplex/channel"
)

func ExampleRun() {
	lhs, rhs := channel.Direct()

	// The peer carries on its half of the conversation in the background.
	// It answers the first thing it hears, then waits to be dismissed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := rhs.Recv()
			if err != nil || string(msg) == "bye" {
				return
			}
			rhs.Send([]byte("pleased to meet you, " + string(msg)))
		}
	}()

	// The operator introduces themselves and leaves. Whatever the peer says
	// in between is delivered to the output sink.
	input := strings.NewReader("marco\nbye\n")
	if err := duplex.Run(lhs, input, os.Stdout, nil); err != nil {
		log.Fatalf("Run: %v", err)
	}
	<-done

	// Output:
	// pleased to meet you, marco
}

func ExampleSession_WaitStatus() {
	lhs, rhs := channel.Direct()

	// A peer that listens politely but never says anything.
	go func() {
		for {
			msg, err := rhs.Recv()
			if err != nil || string(msg) == "bye" {
				return
			}
		}
	}()

	input := strings.NewReader("a few parting words\nbye\n")
	sess := duplex.New(input, io.Discard, nil).Start(lhs)

	st := sess.WaitStatus()
	fmt.Println("sent:", st.Sent)
	fmt.Println("err:", st.Err)
	// Output:
	// sent: true
	// err: <nil>
}
