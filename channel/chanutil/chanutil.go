// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package chanutil exports helper functions for working with channels and
// framing defined by the github.com/creachadair/duplex/channel package.
package chanutil

import (
	"strings"

	"github.com/creachadair/duplex/channel"
)

// Framing returns a channel.Framing described by the specified name, or nil
// if the name is unknown. The framing types currently understood are:
//
//	header:t -- corresponds to channel.Header(t)
//	line     -- corresponds to channel.Line
//	varint   -- corresponds to channel.Varint
func Framing(name string) channel.Framing {
	if t, ok := strings.CutPrefix(name, "header:"); ok {
		return channel.Header(t)
	}
	return framings[name]
}

var framings = map[string]channel.Framing{
	"line":   channel.Line,
	"varint": channel.Varint,
}
