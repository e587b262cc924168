// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package duplex

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/muesli/cancelreader"
)

func TestStopFlag(t *testing.T) {
	flag := newStopFlag()
	if flag.isSet() {
		t.Error("New flag is already set")
	}

	// However many goroutines race to set the flag, exactly one of them
	// must be told it was first.
	const numSetters = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firsts int

	wg.Add(numSetters)
	for range numSetters {
		go func() {
			defer wg.Done()
			if flag.set() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("First setters: got %d, want 1", firsts)
	}
	if !flag.isSet() {
		t.Error("Flag is not set after set")
	}
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  []string
	}{
		{"Plain", "alpha\nbravo\n", 80, []string{"alpha", "bravo"}},
		{"NoFinalNewline", "alpha\nbravo", 80, []string{"alpha", "bravo"}},
		{"CRLF", "alpha\r\nbravo\r\n", 80, []string{"alpha", "bravo"}},
		{"FinalCR", "alpha\r", 80, []string{"alpha"}},
		{"Blank", "\n\nok\n", 80, []string{"", "", "ok"}},
		{"Split", "abcdefghij\n", 4, []string{"abcd", "efgh", "ij"}},
		{"SplitExact", "abcdefgh\n", 4, []string{"abcd", "efgh"}},
		{"SplitThenMore", "abcdef\nok\n", 4, []string{"abcd", "ef", "ok"}},

		// A line longer than the buffer of a bufio.Reader must be collected
		// across multiple partial reads.
		{"LongLine", strings.Repeat("x", 5000) + "\n", 8000,
			[]string{strings.Repeat("x", 5000)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rd := newLineReader(strings.NewReader(test.input), test.max)
			var got []string
			for {
				line, err := rd.readLine()
				if err == io.EOF {
					break
				} else if err != nil {
					t.Fatalf("readLine: unexpected error: %v", err)
				}
				got = append(got, string(line))
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("Lines (-got, +want):\n%s", diff)
			}
		})
	}
}

func TestLineReaderCancel(t *testing.T) {
	defer leaktest.Check(t)()

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("Creating pipe: %v", err)
	}
	defer pr.Close()
	defer pw.Close()

	rd := newLineReader(pr, 80)
	errc := make(chan error, 1)
	go func() {
		_, err := rd.readLine()
		errc <- err
	}()

	ok := rd.cancel()
	if !ok {
		t.Error("cancel: not supported for a pipe")
		pw.Close() // release the blocked read so the test can finish
	}
	if err := <-errc; ok && !errors.Is(err, cancelreader.ErrCanceled) {
		t.Errorf("readLine after cancel: got %v, want %v", err, cancelreader.ErrCanceled)
	}
}
