// Command imsphone-client is the IMS UA client entry point: it parses
// subscriber/AKA credentials and a transport/server endpoint from flags,
// registers with the IMS core, and optionally places one outbound call,
// grounded on the teacher's cmd/test_sip/main.go flag-driven mode dispatch
// and spec.md §4.H/§6.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arzzra/imsphone/internal/account"
	"github.com/arzzra/imsphone/internal/auth"
	"github.com/arzzra/imsphone/internal/call"
	"github.com/arzzra/imsphone/internal/config"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/metrics"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/rtp"
	"github.com/arzzra/imsphone/internal/session"
	"github.com/arzzra/imsphone/internal/socket"
	"github.com/arzzra/imsphone/internal/transport"
)

func main() {
	var (
		localAddr    = flag.String("listen", "0.0.0.0:5060", "local SIP bind address")
		serverAddr   = flag.String("server", "", "IMS core / registrar SIP endpoint (required)")
		transportArg = flag.String("transport", "UDP", "SIP transport: TCP or UDP")
		mcc        = flag.Int("mcc", 1, "home network MCC")
		mnc        = flag.Int("mnc", 1, "home network MNC")
		imsi       = flag.String("imsi", "", "subscriber IMSI (required)")
		kiHex      = flag.String("ki", "", "32 hex chars: AKA subscriber key Ki (required)")
		opHex      = flag.String("op", "", "32 hex chars: AKA operator key OP (mutually exclusive with -opc)")
		opcHex     = flag.String("opc", "", "32 hex chars: AKA derived operator key OPc (mutually exclusive with -op)")
		amfHex     = flag.String("amf", "0000", "4 hex chars: AKA AMF field")
		mode       = flag.String("mode", "register", "register | call")
		target     = flag.String("target", "", "callee SIP URI (required when -mode=call)")
		debug      = flag.Bool("debug", false, "enable Trace-level logging")
	)
	flag.Parse()

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelTrace
	}
	log := logging.New(os.Stderr, level)

	if *serverAddr == "" || *imsi == "" || *kiHex == "" {
		log.Error("missing required flags: -server, -imsi, -ki are mandatory")
		os.Exit(2)
	}

	ki, err := decodeHexArray16(*kiHex)
	if err != nil {
		log.Error("invalid -ki", logging.Err(err))
		os.Exit(2)
	}
	amfBytes, err := hex.DecodeString(*amfHex)
	if err != nil || len(amfBytes) != 2 {
		log.Error("invalid -amf: must be 4 hex chars")
		os.Exit(2)
	}
	var amf [2]byte
	copy(amf[:], amfBytes)

	var opPtr, opcPtr *[16]byte
	if *opHex != "" {
		op, err := decodeHexArray16(*opHex)
		if err != nil {
			log.Error("invalid -op", logging.Err(err))
			os.Exit(2)
		}
		opPtr = &op
	}
	if *opcHex != "" {
		opc, err := decodeHexArray16(*opcHex)
		if err != nil {
			log.Error("invalid -opc", logging.Err(err))
			os.Exit(2)
		}
		opcPtr = &opc
	}

	acc, err := account.New(*mcc, *mnc, *imsi, ki, amf, opPtr, opcPtr)
	if err != nil {
		log.Error("invalid account configuration", logging.Err(err))
		os.Exit(2)
	}

	registry := rtp.NewDefaultRegistry()
	cfg := &config.Config{
		LocalAddress:     *localAddr,
		ServerEndpoint:   *serverAddr,
		Transport:        *transportArg,
		Account:          acc,
		SupportedFormats: registry.Ordered(),
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logging.Err(err))
		os.Exit(2)
	}

	local, err := parseAddress(cfg.LocalAddress)
	if err != nil {
		log.Error("invalid -listen", logging.Err(err))
		os.Exit(2)
	}
	remote, err := parseAddress(cfg.ServerEndpoint)
	if err != nil {
		log.Error("invalid -server", logging.Err(err))
		os.Exit(2)
	}

	m := metrics.New(prometheus.NewRegistry())

	rx, err := reactor.New(log.WithComponent("reactor"))
	if err != nil {
		log.Error("failed to create reactor", logging.Err(err))
		os.Exit(1)
	}
	go rx.RunForever(100 * time.Millisecond)

	callHandler := call.NewCallHandler(rx, log.WithComponent("call"), m, registry, local.IP, registry.Ordered())
	callHandler.OnCallEstablished = func(s call.CallSession, info call.CallInfo) {
		log.Info("call established", logging.String("format", info.Format.Name))
	}

	var transportLayer *transport.Transport
	if *transportArg == "TCP" {
		transportLayer = transport.NewTCPTransport(rx, log.WithComponent("transport"))
	} else {
		transportLayer = transport.NewUDPTransport(rx, log.WithComponent("transport"))
	}

	client := session.NewClient(transportLayer, local, remote, acc, auth.New(), callHandler, registry, log.WithComponent("session"), m)
	client.OnIncomingCall = func(d *session.Dialog) {
		log.Info("inbound call established", logging.String("remote", d.RemoteURI))
	}

	if err := client.Open(); err != nil {
		log.Error("failed to open transport", logging.Err(err))
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Register(); err != nil {
		log.Error("registration failed", logging.Err(err))
		os.Exit(1)
	}
	log.Info("registered", logging.String("realm", acc.Realm()))

	switch *mode {
	case "register":
		waitForSignal(log)
	case "call":
		if *target == "" {
			log.Error("-mode=call requires -target")
			os.Exit(2)
		}
		dialog, err := client.Invite(*target)
		if err != nil {
			log.Error("invite failed", logging.Err(err))
			os.Exit(1)
		}
		log.Info("call answered", logging.String("target", *target))
		waitForSignal(log)
		if err := client.Bye(dialog); err != nil {
			log.Error("bye failed", logging.Err(err))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q: must be register or call\n", *mode)
		os.Exit(2)
	}
}

func waitForSignal(log logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

func decodeHexArray16(s string) ([16]byte, error) {
	var out [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 16 {
		return out, fmt.Errorf("expected 32 hex chars (16 bytes), got %d bytes", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAddress(hostPort string) (socket.Address, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return socket.Address{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return socket.Address{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return socket.Address{IP: host, Port: port}, nil
}
