// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var errNoBlueZ = fmt.Errorf("bluetooth endpoints require BlueZ on Linux: %w", errors.ErrUnsupported)

// AcceptOne is not supported on this system.
func AcceptOne(ctx context.Context, cfg Config) (net.Conn, Device, error) {
	return nil, Device{}, errNoBlueZ
}

// Dial is not supported on this system.
func Dial(ctx context.Context, cfg Config, dev Device) (net.Conn, error) {
	return nil, errNoBlueZ
}

// Discover is not supported on this system.
func Discover(ctx context.Context, cfg Config) ([]Device, error) {
	return nil, errNoBlueZ
}
