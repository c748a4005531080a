package socket

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/reactor"
)

// UDPDatagram is a (sender, payload) pair delivered on read, per spec.md
// §4.B ("read yields (sender, payload)").
type UDPDatagram struct {
	From    Address
	Payload []byte
}

type udpWrite struct {
	dest    Address
	payload []byte
}

// UDPSocket is a connectionless datagram socket with the same queued-write
// discipline as TCPClient, grounded on
// original_source/pyims/nio/sockets.py's UdpSocket. It has no state
// machine (spec.md §4.B).
type UDPSocket struct {
	fd    int
	reg   *reactor.Registration
	queue []udpWrite
	log   logging.Logger

	OnData  func(UDPDatagram)
	OnError func(error)
}

// NewUDPSocket creates a non-blocking UDP socket bound to hostPort.
func NewUDPSocket(rx *reactor.Reactor, log logging.Logger, hostPort string) (*UDPSocket, error) {
	sa, _, err := resolveSockaddr(hostPort)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket: create udp socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: bind: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: set nonblock: %w", err)
	}

	u := &UDPSocket{fd: fd, log: log}
	u.reg = rx.Register(fd)
	u.reg.OnReadable = u.onReadable
	u.reg.OnWritable = u.onWritable
	u.reg.OnExcept = func(err error) {
		if u.OnError != nil {
			u.OnError(err)
		}
	}
	return u, nil
}

// StartRead enables readable-readiness dispatch.
func (u *UDPSocket) StartRead() { u.reg.MarkReadable(true, true) }

// Write enqueues a (dest, payload) datagram for sending.
func (u *UDPSocket) Write(dest Address, payload []byte) {
	u.queue = append(u.queue, udpWrite{dest: dest, payload: payload})
	u.reg.MarkWritable(true, true)
}

func (u *UDPSocket) onReadable() {
	buf := make([]byte, readBufferSize)
	n, from, err := unix.Recvfrom(u.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		if u.OnError != nil {
			u.OnError(fmt.Errorf("socket: recvfrom: %w", err))
		}
		return
	}
	if u.OnData != nil {
		u.OnData(UDPDatagram{From: sockaddrToAddress(from), Payload: append([]byte(nil), buf[:n]...)})
	}
}

func (u *UDPSocket) onWritable() {
	for i := 0; i < maxWriteChunksPerWakeup && len(u.queue) > 0; i++ {
		w := u.queue[0]
		sa := &unix.SockaddrInet4{Port: w.dest.Port}
		ip := parseIPv4(w.dest.IP)
		copy(sa.Addr[:], ip)
		err := unix.Sendto(u.fd, w.payload, 0, sa)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return
			}
			if u.OnError != nil {
				u.OnError(fmt.Errorf("socket: sendto: %w", err))
			}
			return
		}
		u.queue = u.queue[1:]
	}
	if len(u.queue) == 0 {
		u.reg.MarkWritable(false, false)
	}
}

func parseIPv4(s string) [4]byte {
	var out [4]byte
	var a, b, c, d int
	fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	out[0], out[1], out[2], out[3] = byte(a), byte(b), byte(c), byte(d)
	return out
}

// Close tears down the socket.
func (u *UDPSocket) Close() {
	u.reg.Close()
	unix.Close(u.fd)
}

// LocalPort returns the bound local port.
func (u *UDPSocket) LocalPort() (int, error) {
	sa, err := unix.Getsockname(u.fd)
	if err != nil {
		return 0, err
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return in4.Port, nil
	}
	return 0, fmt.Errorf("socket: unexpected sockaddr type")
}
