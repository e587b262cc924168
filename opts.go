// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package duplex

import (
	"fmt"
	"io"
	"log"

	"github.com/creachadair/duplex/channel"
	"github.com/creachadair/duplex/metrics"
)

const logFlags = log.LstdFlags | log.Lshortfile

// DefaultFarewell is the record content that ends a session by mutual
// consent. It is compared exactly, case-sensitively, after line terminators
// have been stripped.
const DefaultFarewell = "bye"

// Options control the behaviour of a session created by New.
// A nil *Options provides sensible defaults.
type Options struct {
	// If not nil, send debug logs to this writer.
	LogWriter io.Writer

	// The maximum number of payload bytes transmitted in one record.
	// Operator lines longer than this are split into multiple records at
	// this bound. A value less than 1 uses channel.DefaultMaxPacket.
	MaxFrame int

	// The record content that ends the session, if not empty; otherwise
	// DefaultFarewell is used. Changing this breaks interoperability with
	// peers using the default.
	Farewell string

	// If not nil, record traffic totals for the session to this collector.
	Metrics *metrics.M
}

func (o *Options) logger() func(string, ...interface{}) {
	if o == nil || o.LogWriter == nil {
		return func(string, ...interface{}) {}
	}
	logger := log.New(o.LogWriter, "[duplex] ", logFlags)
	return func(msg string, args ...interface{}) { logger.Output(2, fmt.Sprintf(msg, args...)) }
}

func (o *Options) maxFrame() int {
	if o == nil || o.MaxFrame < 1 {
		return channel.DefaultMaxPacket
	}
	return o.MaxFrame
}

func (o *Options) farewell() []byte {
	if o == nil || o.Farewell == "" {
		return []byte(DefaultFarewell)
	}
	return []byte(o.Farewell)
}

func (o *Options) metrics() *metrics.M {
	if o == nil {
		return nil // a nil *metrics.M is valid, and discards its input
	}
	return o.Metrics
}
