package transport

import (
	"fmt"

	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/reactor"
	"github.com/arzzra/imsphone/internal/socket"
)

// Transport is a factory over a shared Reactor thread that opens
// Transactions and exposes a transport name ("TCP" or "UDP") used in Via,
// per spec.md §4.G.
type Transport struct {
	name string
	rx   *reactor.Reactor
	log  logging.Logger
}

// NewTCPTransport builds a Transport that opens TCP-backed Transactions.
func NewTCPTransport(rx *reactor.Reactor, log logging.Logger) *Transport {
	return &Transport{name: "TCP", rx: rx, log: log}
}

// NewUDPTransport builds a Transport that opens UDP-backed Transactions.
func NewUDPTransport(rx *reactor.Reactor, log logging.Logger) *Transport {
	return &Transport{name: "UDP", rx: rx, log: log}
}

// Name returns "TCP" or "UDP".
func (t *Transport) Name() string { return t.name }

// Open connects (TCP) or binds (UDP) a Transaction from local to remote.
func (t *Transport) Open(local, remote socket.Address) (*Transaction, error) {
	switch t.name {
	case "TCP":
		return t.openTCP(local, remote)
	case "UDP":
		return t.openUDP(local, remote)
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", t.name)
	}
}

func (t *Transport) openTCP(local, remote socket.Address) (*Transaction, error) {
	client, err := socket.NewTCPClient(t.rx, t.log)
	if err != nil {
		return nil, err
	}

	tx := newTransaction(t.log, func(data []byte) error {
		client.EnqueueSend(data)
		return nil
	}, client.Close)

	client.OnData = tx.onReadBytes
	client.OnConnected = func() { client.StartRead() }
	client.OnError = tx.onError
	client.OnClosed = func() { tx.onError(fmt.Errorf("transport: tcp connection closed")) }

	if err := client.Connect(remote.String()); err != nil {
		return nil, err
	}
	return tx, nil
}

func (t *Transport) openUDP(local, remote socket.Address) (*Transaction, error) {
	udp, err := socket.NewUDPSocket(t.rx, t.log, local.String())
	if err != nil {
		return nil, err
	}

	tx := newTransaction(t.log, func(data []byte) error {
		udp.Write(remote, data)
		return nil
	}, udp.Close)

	udp.OnData = func(dg socket.UDPDatagram) { tx.onReadBytes(dg.Payload) }
	udp.OnError = tx.onError
	udp.StartRead()

	return tx, nil
}
