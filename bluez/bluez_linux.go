// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
)

// BlueZ bus and interface names.
const (
	bluezBus  = "org.bluez"
	bluezRoot = dbus.ObjectPath("/org/bluez")

	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	profileIface    = "org.bluez.Profile1"
	profileMgrIface = "org.bluez.ProfileManager1"

	objectMgrIface = "org.freedesktop.DBus.ObjectManager"
	propsIface     = "org.freedesktop.DBus.Properties"
)

// AcceptOne registers the profile described by cfg with BlueZ and waits for
// one peer to connect to it, returning the connection and what is known of
// the peer. The profile stays registered, refusing further connections,
// until the returned connection is closed. Ending the context unblocks the
// wait, and AcceptOne reports the context's error.
func AcceptOne(ctx context.Context, cfg Config) (net.Conn, Device, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, Device{}, fmt.Errorf("connect system bus: %w", err)
	}
	prof, unregister, err := registerProfile(ctx, bus, cfg, "server")
	if err != nil {
		bus.Close()
		return nil, Device{}, err
	}

	select {
	case <-ctx.Done():
		prof.refuse()
		unregister()
		bus.Close()
		return nil, Device{}, ctx.Err()

	case res := <-prof.res:
		conn, err := newConn(res.fd, pathAddr(string(res.dev)), func() {
			unregister()
			bus.Close()
		})
		if err != nil {
			unregister()
			bus.Close()
			return nil, Device{}, err
		}
		return conn, deviceInfo(ctx, bus, res.dev), nil
	}
}

// Dial connects to dev, which must carry at least a Path or an Addr. The
// device must already be known to BlueZ (see Discover); Dial pairs with it
// first if it is not yet paired. As with AcceptOne, the profile backing the
// connection stays registered until the connection is closed.
func Dial(ctx context.Context, cfg Config, dev Device) (net.Conn, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	conn, err := dial(ctx, bus, cfg, dev)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return conn, nil
}

func dial(ctx context.Context, bus *dbus.Conn, cfg Config, dev Device) (net.Conn, error) {
	devPath, err := resolveDevice(ctx, bus, dev)
	if err != nil {
		return nil, err
	}
	devObj := bus.Object(bluezBus, devPath)

	// Pair first if the device reports it is not already paired. Pairing
	// feedback (PIN entry and so on) is the concern of whatever agent is
	// registered on the system.
	var paired dbus.Variant
	if call := devObj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, "Paired"); call.Err == nil {
		if err := call.Store(&paired); err == nil {
			if yes, ok := paired.Value().(bool); ok && !yes {
				if call := devObj.CallWithContext(ctx, deviceIface+".Pair", 0); call.Err != nil {
					return nil, fmt.Errorf("pair with %s: %w", devPath, call.Err)
				}
			}
		}
	}

	// The profile must be in place before ConnectProfile, since BlueZ
	// delivers the socket by calling NewConnection on it.
	prof, unregister, err := registerProfile(ctx, bus, cfg, "client")
	if err != nil {
		return nil, err
	}
	if call := devObj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, cfg.uuid()); call.Err != nil {
		prof.refuse()
		unregister()
		return nil, fmt.Errorf("connect profile: %w", call.Err)
	}

	select {
	case <-ctx.Done():
		prof.refuse()
		unregister()
		return nil, ctx.Err()

	case res := <-prof.res:
		conn, err := newConn(res.fd, pathAddr(string(res.dev)), func() {
			unregister()
			bus.Close()
		})
		if err != nil {
			unregister()
			return nil, err
		}
		return conn, nil
	}
}

// Discover reports nearby devices advertising the configured service. It
// puts every adapter into discovery mode, collects devices until the
// context ends, and returns what was seen. Use a context deadline to bound
// the scan.
func Discover(ctx context.Context, cfg Config) ([]Device, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	defer bus.Close()

	// Watch for devices BlueZ adds while the scan runs. The subscription
	// starts before the snapshot so no device falls between the two.
	sig := make(chan *dbus.Signal, 16)
	bus.Signal(sig)
	defer bus.RemoveSignal(sig)
	if err := bus.AddMatchSignal(
		dbus.WithMatchSender(bluezBus),
		dbus.WithMatchInterface(objectMgrIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, fmt.Errorf("match signal: %w", err)
	}
	defer bus.RemoveMatchSignal(
		dbus.WithMatchSender(bluezBus),
		dbus.WithMatchInterface(objectMgrIface),
		dbus.WithMatchMember("InterfacesAdded"),
	)

	objs, err := bluezObjects(ctx, bus)
	if err != nil {
		return nil, err
	}
	found := make(map[dbus.ObjectPath]Device)
	for path, ifaces := range objs {
		if props, ok := ifaces[deviceIface]; ok && advertises(props, cfg.uuid()) {
			found[path] = propsDevice(path, props)
		}
	}

	// Ask every adapter to discover for the duration. Failures are ignored;
	// an adapter may already be discovering on someone else's behalf.
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; !ok {
			continue
		}
		adapter := bus.Object(bluezBus, path)
		adapter.CallWithContext(ctx, adapterIface+".StartDiscovery", 0)
		defer adapter.Call(adapterIface+".StopDiscovery", 0)
	}

	for {
		select {
		case <-ctx.Done():
			devs := make([]Device, 0, len(found))
			for _, dev := range found {
				devs = append(devs, dev)
			}
			sort.Slice(devs, func(i, j int) bool { return devs[i].Addr < devs[j].Addr })
			return devs, nil

		case s := <-sig:
			if s == nil || len(s.Body) != 2 {
				continue
			}
			path, _ := s.Body[0].(dbus.ObjectPath)
			ifaces, _ := s.Body[1].(map[string]map[string]dbus.Variant)
			if props, ok := ifaces[deviceIface]; ok && advertises(props, cfg.uuid()) {
				found[path] = propsDevice(path, props)
			}
		}
	}
}

// profileSeq distinguishes the object paths of profiles registered within
// one process.
var profileSeq atomic.Uint64

// registerProfile exports a fresh profile object on bus and registers it
// with BlueZ under the given role ("server" or "client"). On success it
// returns the profile and a function that unregisters it again.
func registerProfile(ctx context.Context, bus *dbus.Conn, cfg Config, role string) (*profile, func(), error) {
	path := dbus.ObjectPath("/com/creachadair/duplex/p" + strconv.FormatUint(profileSeq.Add(1), 10))
	prof := &profile{res: make(chan result, 1)}
	if err := bus.Export(prof, path, profileIface); err != nil {
		return nil, nil, fmt.Errorf("export profile: %w", err)
	}
	mgr := bus.Object(bluezBus, bluezRoot)
	if call := mgr.CallWithContext(ctx, profileMgrIface+".RegisterProfile", 0, path, cfg.uuid(), cfg.profileOptions(role)); call.Err != nil {
		bus.Export(nil, path, profileIface)
		return nil, nil, fmt.Errorf("register profile: %w", call.Err)
	}
	return prof, func() {
		mgr.Call(profileMgrIface+".UnregisterProfile", 0, path)
		bus.Export(nil, path, profileIface)
	}, nil
}

// profileOptions builds the option map for ProfileManager1.RegisterProfile.
// BlueZ takes both PSM and Channel as 16-bit values.
func (c Config) profileOptions(role string) map[string]dbus.Variant {
	opts := map[string]dbus.Variant{"Role": dbus.MakeVariant(role)}
	if c.ServiceName != "" {
		opts["Name"] = dbus.MakeVariant(c.ServiceName)
	}
	if role != "server" {
		return opts
	}
	switch {
	case c.PSM != 0:
		opts["PSM"] = dbus.MakeVariant(c.PSM)
	case c.Channel != 0:
		opts["Channel"] = dbus.MakeVariant(uint16(c.Channel))
	default:
		opts["PSM"] = dbus.MakeVariant(DefaultPSM)
	}
	return opts
}

// A profile implements org.bluez.Profile1. BlueZ calls NewConnection on it
// when a peer connects to the registered service, passing the socket as a
// unix descriptor. The first connection is delivered on res; any later one
// is refused and its descriptor closed.
type profile struct {
	res chan result // 1-buffered

	mu   sync.Mutex
	done bool
}

type result struct {
	fd  int
	dev dbus.ObjectPath
}

// NewConnection implements the Profile1 method of that name.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		syscall.Close(int(fd))
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"already connected"}}
	}
	p.res <- result{fd: int(fd), dev: dev}
	p.done = true
	return nil
}

// RequestDisconnection implements the Profile1 method of that name. The
// socket owner sees the disconnect on the socket itself, so there is
// nothing more to do here.
func (p *profile) RequestDisconnection(dbus.ObjectPath) *dbus.Error { return nil }

// Release implements the Profile1 method of that name.
func (p *profile) Release() *dbus.Error { return nil }

// refuse marks p done without taking a connection, closing a delivery that
// raced with the caller giving up.
func (p *profile) refuse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	select {
	case res := <-p.res:
		syscall.Close(res.fd)
	default:
	}
}

// A conn adapts a socket received from BlueZ into a net.Conn. The
// descriptor is made non-blocking and registered with the runtime poller,
// so read and write deadlines work and channel.Packet can cancel a pending
// read.
type conn struct {
	file *os.File
	peer addr

	once sync.Once
	stop func() // releases the profile registration
}

// newConn takes ownership of fd, closing it if the conn cannot be built.
// stop, if non-nil, is run once when the conn is closed.
func newConn(fd int, peer string, stop func()) (net.Conn, error) {
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}
	return &conn{file: os.NewFile(uintptr(fd), "bluetooth"), peer: addr(peer), stop: stop}, nil
}

func (c *conn) Read(data []byte) (int, error)  { return c.file.Read(data) }
func (c *conn) Write(data []byte) (int, error) { return c.file.Write(data) }

// Close closes the socket and releases the profile registration that
// produced it.
func (c *conn) Close() error {
	err := c.file.Close()
	c.once.Do(func() {
		if c.stop != nil {
			c.stop()
		}
	})
	return err
}

func (c *conn) LocalAddr() net.Addr  { return addr("") }
func (c *conn) RemoteAddr() net.Addr { return c.peer }

func (c *conn) SetDeadline(t time.Time) error      { return c.file.SetDeadline(t) }
func (c *conn) SetReadDeadline(t time.Time) error  { return c.file.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.file.SetWriteDeadline(t) }

// An addr is a Bluetooth device address as a net.Addr.
type addr string

func (a addr) Network() string { return "bluetooth" }
func (a addr) String() string  { return string(a) }

// resolveDevice finds the object path for dev. A Path is used as given; an
// Addr is looked up among the devices BlueZ already knows. A device BlueZ
// has never seen must be discovered before it can be dialed.
func resolveDevice(ctx context.Context, bus *dbus.Conn, dev Device) (dbus.ObjectPath, error) {
	if dev.Path != "" {
		return dbus.ObjectPath(dev.Path), nil
	} else if dev.Addr == "" {
		return "", errors.New("device has neither path nor address")
	}
	objs, err := bluezObjects(ctx, bus)
	if err != nil {
		return "", err
	}
	node := "/" + addrNode(dev.Addr)
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if s, _ := props["Address"].Value().(string); strings.EqualFold(s, dev.Addr) {
			return path, nil
		}
		if strings.HasSuffix(string(path), node) {
			return path, nil
		}
	}
	return "", fmt.Errorf("device %s is not known to BlueZ", dev.Addr)
}

// bluezObjects fetches the object tree of the BlueZ service.
func bluezObjects(ctx context.Context, bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezBus, "/").CallWithContext(ctx, objectMgrIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("get managed objects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode managed objects: %w", err)
	}
	return objs, nil
}

// deviceInfo describes the device at path, filled in with whatever
// properties BlueZ will share. Property errors are not reported; the path
// and the address embedded in it already identify the peer.
func deviceInfo(ctx context.Context, bus *dbus.Conn, path dbus.ObjectPath) Device {
	var props map[string]dbus.Variant
	call := bus.Object(bluezBus, path).CallWithContext(ctx, propsIface+".GetAll", 0, deviceIface)
	if call.Err != nil || call.Store(&props) != nil {
		return Device{Path: string(path), Addr: pathAddr(string(path))}
	}
	return propsDevice(path, props)
}

// propsDevice builds a Device from the Device1 properties of path.
func propsDevice(path dbus.ObjectPath, props map[string]dbus.Variant) Device {
	dev := Device{Path: string(path), Addr: pathAddr(string(path))}
	if s, ok := props["Address"].Value().(string); ok && s != "" {
		dev.Addr = s
	}
	dev.Name, _ = props["Name"].Value().(string)
	dev.Alias, _ = props["Alias"].Value().(string)
	return dev
}

// advertises reports whether the Device1 properties include uuid in the
// device's service list.
func advertises(props map[string]dbus.Variant, uuid string) bool {
	uuids, _ := props["UUIDs"].Value().([]string)
	for _, u := range uuids {
		if strings.EqualFold(u, uuid) {
			return true
		}
	}
	return false
}
