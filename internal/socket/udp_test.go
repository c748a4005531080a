package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/reactor"
)

func TestUDPSocketRoundTrip(t *testing.T) {
	rx, err := reactor.New(logging.Nop())
	require.NoError(t, err)
	defer rx.Close()
	go rx.RunForever(10 * time.Millisecond)
	defer rx.Stop()

	a, err := NewUDPSocket(rx, logging.Nop(), "127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewUDPSocket(rx, logging.Nop(), "127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	aPort, err := a.LocalPort()
	require.NoError(t, err)
	bPort, err := b.LocalPort()
	require.NoError(t, err)
	require.NotZero(t, aPort)
	require.NotZero(t, bPort)

	received := make(chan UDPDatagram, 1)
	b.OnData = func(dg UDPDatagram) { received <- dg }
	b.StartRead()
	a.StartRead()

	a.Write(Address{IP: "127.0.0.1", Port: bPort}, []byte("hello"))

	select {
	case dg := <-received:
		require.Equal(t, "hello", string(dg.Payload))
		require.Equal(t, "127.0.0.1", dg.From.IP)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram was not delivered within timeout")
	}
}

func TestAddressString(t *testing.T) {
	a := Address{IP: "127.0.0.1", Port: 5060}
	require.Equal(t, "127.0.0.1:5060", a.String())
}
