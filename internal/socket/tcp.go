package socket

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/reactor"
)

// TCPState mirrors spec.md §3's linear TCP connection state machine.
type TCPState int

const (
	TCPUnconnected TCPState = iota
	TCPConnecting
	TCPConnected
	TCPClosed
)

// maxWriteChunksPerWakeup bounds write work per readiness event, per
// spec.md §3/§4.B ("a send cap per wakeup (at most 10 dequeues)").
const maxWriteChunksPerWakeup = 10

const readBufferSize = 4096

// TCPClient is a non-blocking TCP socket with queued writes, grounded on
// original_source/pyims/nio/sockets.py's TcpSocket and
// nio/selector.py's TcpRegistration.
type TCPClient struct {
	fd    int
	state TCPState
	reg   *reactor.Registration
	queue [][]byte
	log   logging.Logger

	OnConnected func()
	OnData      func(data []byte)
	OnClosed    func()
	OnError     func(err error)
}

// NewTCPClient creates an unconnected non-blocking TCP socket registered
// with rx.
func NewTCPClient(rx *reactor.Reactor, log logging.Logger) (*TCPClient, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: create tcp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: set nonblock: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	c := &TCPClient{fd: fd, state: TCPUnconnected, log: log}
	c.reg = rx.Register(fd)
	c.reg.OnReadable = c.onReadable
	c.reg.OnWritable = c.onWritable
	c.reg.OnExcept = c.onExcept
	return c, nil
}

// newConnectedTCPClient wraps an already-connected fd (from Accept), used
// by TCPServer.
func newConnectedTCPClient(rx *reactor.Reactor, log logging.Logger, fd int) *TCPClient {
	c := &TCPClient{fd: fd, state: TCPConnected, log: log}
	c.reg = rx.Register(fd)
	c.reg.OnReadable = c.onReadable
	c.reg.OnWritable = c.onWritable
	c.reg.OnExcept = c.onExcept
	return c
}

// Connect submits a non-blocking connect; success is observed as
// writability and finalized in onWritable.
func (c *TCPClient) Connect(hostPort string) error {
	sa, _, err := resolveSockaddr(hostPort)
	if err != nil {
		return err
	}
	err = unix.Connect(c.fd, sa)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		return fmt.Errorf("socket: connect: %w", err)
	}
	c.state = TCPConnecting
	c.reg.MarkWritable(true, true)
	return nil
}

// StartRead enables readable-readiness dispatch.
func (c *TCPClient) StartRead() { c.reg.MarkReadable(true, true) }

// EnqueueSend appends data to the write queue and marks the socket
// writable.
func (c *TCPClient) EnqueueSend(data []byte) {
	c.queue = append(c.queue, data)
	c.reg.MarkWritable(true, true)
}

func (c *TCPClient) onReadable() {
	buf := make([]byte, readBufferSize)
	n, err := unix.Read(c.fd, buf)
	if n == 0 && err == nil {
		c.transitionClosed()
		return
	}
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		c.fail(fmt.Errorf("socket: read: %w", err))
		return
	}
	if c.OnData != nil {
		c.OnData(buf[:n])
	}
}

func (c *TCPClient) onWritable() {
	if c.state == TCPConnecting {
		c.finalizeConnect()
		return
	}
	c.drainWrites()
}

func (c *TCPClient) finalizeConnect() {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		c.fail(fmt.Errorf("socket: getsockopt SO_ERROR: %w", err))
		return
	}
	if errno != 0 {
		c.fail(fmt.Errorf("socket: connect failed: errno %d", errno))
		return
	}
	c.state = TCPConnected
	c.reg.MarkWritable(len(c.queue) > 0, false)
	if c.OnConnected != nil {
		c.OnConnected()
	}
}

func (c *TCPClient) drainWrites() {
	for i := 0; i < maxWriteChunksPerWakeup && len(c.queue) > 0; i++ {
		chunk := c.queue[0]
		n, err := unix.Write(c.fd, chunk)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EINTR) {
				return
			}
			c.fail(fmt.Errorf("socket: write: %w", err))
			return
		}
		if n < len(chunk) {
			c.queue[0] = chunk[n:]
			return
		}
		c.queue = c.queue[1:]
	}
	if len(c.queue) == 0 {
		c.reg.MarkWritable(false, false)
	}
}

func (c *TCPClient) onExcept(err error) {
	c.fail(err)
}

func (c *TCPClient) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
	c.transitionClosed()
}

func (c *TCPClient) transitionClosed() {
	if c.state == TCPClosed {
		return
	}
	c.state = TCPClosed
	c.reg.Close()
	if c.OnClosed != nil {
		c.OnClosed()
	}
}

// Close tears down the socket.
func (c *TCPClient) Close() {
	c.transitionClosed()
	unix.Close(c.fd)
}

// State returns the current connection state.
func (c *TCPClient) State() TCPState { return c.state }

// TCPServer accepts inbound connections and hands them to the caller as
// new TCPClient wrappers, per spec.md §4.B ("Readable event -> accept one
// connection and hand it to the user as a new TCP client wrapper").
type TCPServer struct {
	fd  int
	reg *reactor.Registration
	rx  *reactor.Reactor
	log logging.Logger

	OnAccept func(*TCPClient)
	OnError  func(error)
}

// NewTCPServer creates a listening non-blocking TCP socket bound to
// hostPort.
func NewTCPServer(rx *reactor.Reactor, log logging.Logger, hostPort string, backlog int) (*TCPServer, error) {
	sa, _, err := resolveSockaddr(hostPort)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: create tcp server socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: set nonblock: %w", err)
	}

	s := &TCPServer{fd: fd, rx: rx, log: log}
	s.reg = rx.Register(fd)
	s.reg.OnReadable = s.onReadable
	s.reg.OnExcept = func(err error) {
		if s.OnError != nil {
			s.OnError(err)
		}
	}
	s.reg.MarkReadable(true, true)
	return s, nil
}

func (s *TCPServer) onReadable() {
	connFd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		if s.OnError != nil {
			s.OnError(fmt.Errorf("socket: accept: %w: %w", imserrors.ErrTransportFailure, err))
		}
		return
	}
	client := newConnectedTCPClient(s.rx, s.log, connFd)
	if s.OnAccept != nil {
		s.OnAccept(client)
	}
}

// Close tears down the listening socket.
func (s *TCPServer) Close() {
	s.reg.Close()
	unix.Close(s.fd)
}
