// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Program dtalk holds a two-way conversation with a peer: lines typed on
// stdin are sent to the peer, and records sent by the peer are printed to
// stdout.
//
// Usage:
//
//	dtalk [options] <address>
//	dtalk -listen [options] <address>
//	dtalk -bt -scan [options]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creachadair/duplex"
	"github.com/creachadair/duplex/bluez"
	"github.com/creachadair/duplex/channel"
	"github.com/creachadair/duplex/channel/chanutil"
	"github.com/creachadair/duplex/metrics"
	"github.com/creachadair/duplex/sock"
	"github.com/creachadair/duplex/wsock"
)

var (
	doListen    = flag.Bool("listen", false, "Wait for one peer to connect instead of dialing")
	chanFraming = flag.String("f", "line", "Channel framing for stream transports")
	doSeq       = flag.Bool("seq", false, "Use a sequenced-packet socket (\"unixpacket\")")
	doWS        = flag.Bool("ws", false, "Converse over a websocket (address is a URL or host:port)")
	doBT        = flag.Bool("bt", false, "Converse over Bluetooth (address is a device address)")
	doScan      = flag.Bool("scan", false, "With -bt, list nearby devices and exit")
	scanTime    = flag.Duration("t", 10*time.Second, "Duration of a device scan (with -bt -scan)")
	btPSM       = flag.Uint("psm", 0, "With -bt -listen, listen on this L2CAP PSM")
	btChannel   = flag.Uint("channel", 0, "With -bt, use RFCOMM; a listener takes this channel number")
	maxFrame    = flag.Int("mtu", 0, "Maximum payload bytes per record (0 for the transport default)")
	withLogging = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] <address>
       %[1]s -listen [options] <address>
       %[1]s -bt -scan [options]

Hold a two-way conversation with a peer. Lines typed on stdin are sent to
the peer, and records sent by the peer are printed to stdout. Typing "bye",
or ending input, ends the conversation from either side.

With -listen, wait for one peer to connect at the given address; otherwise
dial the peer listening there. An address of the form host:port is a TCP
endpoint, any other address is a Unix-domain socket path, and with -seq the
socket is sequenced-packet ("unixpacket"). With -ws, a listener serves
websockets at a host:port and a dialer takes a ws://host/path URL. With
-bt, a listener registers a Bluetooth service and a dialer takes the
address (XX:XX:XX:XX:XX:XX) of a device offering one.

The -f flag sets the framing discipline for stream transports. The peers
must agree on framing for the conversation to work. The options are:

  header:<t> -- header-framed, content-type <t>
  line       -- byte-terminated, records end in LF (Unicode 10)
  varint     -- length-prefixed, length is a binary varint

Message-preserving transports (-seq, and -bt without -channel) need no
framing and ignore -f.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if *doWS && *doBT {
		log.Fatal("Choose at most one of -ws and -bt")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *doScan {
		if !*doBT {
			log.Fatal("The -scan flag requires -bt")
		}
		scanDevices(ctx)
		return
	}

	// Only a Bluetooth listener can make do without an address.
	wantArgs := 1
	if *doBT && *doListen {
		wantArgs = 0
	}
	if flag.NArg() != wantArgs {
		flag.Usage()
		os.Exit(2)
	}

	opts := &duplex.Options{MaxFrame: *maxFrame}
	if *withLogging {
		opts.LogWriter = os.Stderr
		opts.Metrics = metrics.New()
	}

	ch, err := connect(ctx)
	if err != nil {
		log.Fatalf("Connect: %v", err)
	}

	// An interrupt asks the session to stop; teardown then proceeds as for
	// an operator farewell, and a second interrupt kills the process.
	sess := duplex.New(os.Stdin, os.Stdout, opts).Start(ch)
	stop := context.AfterFunc(ctx, sess.Stop)
	defer stop()

	stat := sess.WaitStatus()
	if *withLogging {
		snap := opts.Metrics.Snapshot()
		fmt.Fprintf(os.Stderr, "sent: %d records, %d bytes (max %d); received: %d records, %d bytes (max %d)\n",
			snap.Counter["send.records"], snap.Counter["send.bytes"], snap.MaxVal["send.bytes"],
			snap.Counter["recv.records"], snap.Counter["recv.bytes"], snap.MaxVal["recv.bytes"])
	}
	if !stat.Success() {
		log.Fatalf("Session failed: %v", stat.Err)
	}
}

// connect prepares the channel for the conversation per the mode flags.
func connect(ctx context.Context) (channel.Channel, error) {
	switch {
	case *doWS:
		return connectWS(ctx)
	case *doBT:
		return connectBT(ctx)
	}
	return connectSocket(ctx)
}

func connectSocket(ctx context.Context) (channel.Channel, error) {
	addr := flag.Arg(0)
	network := sock.Network(addr)
	if *doSeq {
		network = "unixpacket"
	}

	var conn net.Conn
	var err error
	if *doListen {
		conn, err = sock.AcceptOne(ctx, network, addr)
		if err == nil {
			log.Printf("Connected to %v", conn.RemoteAddr())
		}
	} else {
		conn, err = sock.Dial(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}
	if network == "unixpacket" {
		return channel.Packet(conn, *maxFrame), nil
	}
	return frameStream(conn), nil
}

func connectWS(ctx context.Context) (channel.Channel, error) {
	wopts := &wsock.Options{MaxFrame: int64(*maxFrame)}
	if !*doListen {
		return wsock.Dial(ctx, flag.Arg(0), wopts)
	}

	// The server stays up for the rest of the process so the accepted
	// websocket keeps working; closing the listener just refuses any peers
	// that show up after the first.
	lst := wsock.NewListener(wopts)
	srv := &http.Server{Addr: flag.Arg(0), Handler: lst}
	go srv.ListenAndServe()
	ch, err := lst.Accept(ctx)
	lst.Close()
	return ch, err
}

func connectBT(ctx context.Context) (channel.Channel, error) {
	cfg := bluez.Config{
		PSM:         uint16(*btPSM),
		Channel:     uint8(*btChannel),
		ServiceName: "dtalk",
	}

	var conn net.Conn
	if *doListen {
		c, dev, err := bluez.AcceptOne(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Printf("Connected to %v", dev)
		conn = c
	} else {
		c, err := bluez.Dial(ctx, cfg, bluez.Device{Addr: flag.Arg(0)})
		if err != nil {
			return nil, err
		}
		conn = c
	}
	if *btChannel != 0 {
		// RFCOMM is a byte stream and needs framing.
		return frameStream(conn), nil
	}
	return channel.Packet(conn, *maxFrame), nil
}

// frameStream wraps a stream connection in the framing the -f flag names.
func frameStream(conn net.Conn) channel.Channel {
	nc := chanutil.Framing(*chanFraming)
	if nc == nil {
		log.Fatalf("Unknown channel framing %q", *chanFraming)
	}
	return nc(conn, conn)
}

// scanDevices runs a bounded device scan and prints what it finds, one
// device per line.
func scanDevices(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, *scanTime)
	defer cancel()
	devs, err := bluez.Discover(sctx, bluez.Config{})
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	for _, dev := range devs {
		fmt.Println(dev)
	}
}
