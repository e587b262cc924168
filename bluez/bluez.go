// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package bluez establishes Bluetooth connections for a session to talk
// over, using the BlueZ daemon's D-Bus profile interface.
//
// A listening endpoint registers a profile and waits for BlueZ to hand it
// the socket of one incoming connection; a dialing endpoint connects to a
// discovered or known device by address. Both yield a net.Conn carrying a
// message-preserving socket (L2CAP by default), suitable for channel.Packet.
//
// BlueZ is Linux-only. On other systems all operations report
// errors.ErrUnsupported.
package bluez

import "strings"

const (
	// SerialPortUUID is the Bluetooth serial port profile UUID, the default
	// service identity for duplex endpoints.
	SerialPortUUID = "00001101-0000-1000-8000-00805f9b34fb"

	// DefaultPSM is the L2CAP protocol/service multiplexer a listener uses
	// when Config leaves both PSM and Channel unset.
	DefaultPSM uint16 = 0x1001
)

// A Device identifies a remote Bluetooth device. Path is the BlueZ object
// path of the device; the other fields are advisory and may be empty
// depending on what discovery reported.
type Device struct {
	Path  string // BlueZ object path (e.g. /org/bluez/hci0/dev_XX_XX_XX_XX_XX_XX)
	Addr  string // device address (XX:XX:XX:XX:XX:XX)
	Name  string // remote device name, if known
	Alias string // local alias for the device, if set
}

// String renders d for a device listing.
func (d Device) String() string {
	addr := d.Addr
	if addr == "" {
		addr = d.Path
	}
	name := d.Alias
	if name == "" {
		name = d.Name
	}
	if name == "" {
		return addr
	}
	return addr + " " + name
}

// A Config carries the settings shared by the connection operations. A zero
// Config is ready to use: it identifies the service by SerialPortUUID and
// listens on an L2CAP socket at DefaultPSM.
type Config struct {
	// UUID identifies the service to register and connect to. If empty,
	// SerialPortUUID is used.
	UUID string

	// For a listener, PSM and Channel pick the listening socket: a nonzero
	// PSM listens on an L2CAP sequenced-packet socket, a nonzero Channel on
	// an RFCOMM stream socket. If both are zero the listener takes L2CAP at
	// DefaultPSM; if both are set, PSM wins. A dialer ignores these and
	// takes the socket named by the peer's service record.
	PSM     uint16
	Channel uint8

	// ServiceName, if set, names the service in its record.
	ServiceName string
}

// uuid reports the service UUID to register and connect with.
func (c Config) uuid() string {
	if c.UUID == "" {
		return SerialPortUUID
	}
	return c.UUID
}

// pathAddr recovers the device address encoded in a BlueZ device object
// path, or "" if the path has no address suffix.
func pathAddr(path string) string {
	i := strings.LastIndex(path, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(path[i+len("/dev_"):], "_", ":")
}

// addrNode is the inverse of pathAddr: the path element BlueZ names a
// device's object after.
func addrNode(addr string) string {
	return "dev_" + strings.ReplaceAll(addr, ":", "_")
}
