// Package reactor implements the single-threaded readiness-based socket
// multiplexer that drives all network I/O in imsphone, grounded on
// original_source/pyims/nio/selector.py and spec.md §4.A.
//
// The OS readiness primitive is golang.org/x/sys/unix.Poll, run over raw
// non-blocking file descriptors rather than Go's net package, so that the
// "one reactor thread owns all I/O" model (spec.md §5) is reproduced
// faithfully instead of fighting the runtime's own netpoller.
package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arzzra/imsphone/internal/logging"
)

// Registration is one reactor-managed resource: a stable fd plus readiness
// flags and callbacks. Per spec.md §3: "a registration's descriptor is
// constant over its lifetime; flags mutate only under the reactor lock;
// once closed, no further callbacks fire."
type Registration struct {
	fd int

	mu       *sync.Mutex // the reactor's lock, shared by reference
	signal   func()
	readable bool
	writable bool
	closed   bool

	OnReadable func()
	OnWritable func()
	OnExcept   func(err error)
	OnClosed   func()
}

// Fd returns the registration's file descriptor.
func (r *Registration) Fd() int { return r.fd }

// MarkReadable sets the readable-watch flag; if notify, the reactor loop
// is signalled to rebuild its watch set immediately.
func (r *Registration) MarkReadable(enabled bool, notify bool) {
	r.mu.Lock()
	r.readable = enabled
	r.mu.Unlock()
	if notify {
		r.signal()
	}
}

// MarkWritable sets the writable-watch flag; if notify, the reactor loop
// is signalled to rebuild its watch set immediately.
func (r *Registration) MarkWritable(enabled bool, notify bool) {
	r.mu.Lock()
	r.writable = enabled
	r.mu.Unlock()
	if notify {
		r.signal()
	}
}

// Close marks the registration's descriptor invalid; the loop will invoke
// OnClosed once on its next rebuild and drop the registration.
func (r *Registration) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
}

// Reactor is the event loop itself: a map from descriptor to registration,
// protected by a single re-entrant-by-convention lock (never held across
// the OS readiness wait), plus a self-pipe used to wake the loop from
// another thread.
type Reactor struct {
	mu   sync.Mutex
	regs map[int]*Registration

	wakeR int
	wakeW int

	stop   bool
	logger logging.Logger
}

// New builds a Reactor with its self-pipe wake-up descriptor open.
func New(logger logging.Logger) (*Reactor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: socketpair: %w", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, fmt.Errorf("reactor: set nonblock: %w", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, fmt.Errorf("reactor: set nonblock: %w", err)
	}
	return &Reactor{
		regs:   map[int]*Registration{},
		wakeR:  fds[0],
		wakeW:  fds[1],
		logger: logger.WithComponent("reactor"),
	}, nil
}

// Register installs a registration and signals the loop to rebuild its
// watch sets.
func (rx *Reactor) Register(fd int) *Registration {
	reg := &Registration{fd: fd, mu: &rx.mu, signal: rx.signalLoop}
	rx.mu.Lock()
	rx.regs[fd] = reg
	rx.mu.Unlock()
	rx.signalLoop()
	return reg
}

func (rx *Reactor) signalLoop() {
	var b [1]byte
	_, _ = unix.Write(rx.wakeW, b[:])
}

// Stop requests that RunForever return after its current iteration.
func (rx *Reactor) Stop() {
	rx.mu.Lock()
	rx.stop = true
	rx.mu.Unlock()
	rx.signalLoop()
}

// Run executes one iteration: rebuild watch sets under lock, drop closed
// registrations (invoking OnClosed), release the lock, block in poll() up
// to timeout, then dispatch except/readable/writable callbacks under lock.
func (rx *Reactor) Run(timeout time.Duration) error {
	rx.mu.Lock()
	type watched struct {
		reg             *Registration
		wantReadable    bool
		wantWritable    bool
	}
	var entries []watched
	for fd, reg := range rx.regs {
		if reg.closed || fd < 0 {
			delete(rx.regs, fd)
			if reg.OnClosed != nil {
				reg.OnClosed()
			}
			continue
		}
		entries = append(entries, watched{reg: reg, wantReadable: reg.readable, wantWritable: reg.writable})
	}
	rx.mu.Unlock()

	pollfds := make([]unix.PollFd, 0, len(entries)+1)
	pollfds = append(pollfds, unix.PollFd{Fd: int32(rx.wakeR), Events: unix.POLLIN})
	for _, e := range entries {
		var events int16
		if e.wantReadable {
			events |= unix.POLLIN
		}
		if e.wantWritable {
			events |= unix.POLLOUT
		}
		// every registration is implicitly watched for exceptions:
		// poll() reports POLLERR/POLLHUP/POLLNVAL in revents regardless
		// of the requested events mask.
		pollfds = append(pollfds, unix.PollFd{Fd: int32(e.reg.fd), Events: events})
	}

	timeoutMillis := int(timeout / time.Millisecond)
	_, err := unix.Poll(pollfds, timeoutMillis)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("reactor: poll: %w", err)
	}

	rx.mu.Lock()
	defer rx.mu.Unlock()

	if pollfds[0].Revents&unix.POLLIN != 0 {
		drainWake(rx.wakeR)
	}
	for i, e := range entries {
		revents := pollfds[i+1].Revents
		if revents == 0 {
			continue
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && e.reg.OnExcept != nil {
			e.reg.OnExcept(fmt.Errorf("reactor: fd %d exceptional (revents=%#x)", e.reg.fd, revents))
		}
		if revents&unix.POLLIN != 0 && e.reg.OnReadable != nil {
			e.reg.OnReadable()
		}
		if revents&unix.POLLOUT != 0 && e.reg.OnWritable != nil {
			e.reg.OnWritable()
		}
	}
	return nil
}

func drainWake(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// RunForever repeats Run until Stop is called. Any error from an
// iteration is logged and suppressed, after which the loop sleeps for
// timeout before retrying, per spec.md §4.A's invariant that a callback
// exception never unwinds into the loop.
func (rx *Reactor) RunForever(timeout time.Duration) {
	for {
		rx.mu.Lock()
		stop := rx.stop
		rx.mu.Unlock()
		if stop {
			return
		}
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("reactor: callback panic: %v", r)
				}
			}()
			return rx.Run(timeout)
		}()
		if err != nil {
			rx.logger.Error("reactor iteration failed", logging.Err(err))
			time.Sleep(timeout)
		}
	}
}

// Close releases the self-pipe descriptors.
func (rx *Reactor) Close() error {
	unix.Close(rx.wakeR)
	unix.Close(rx.wakeW)
	return nil
}
