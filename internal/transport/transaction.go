// Package transport implements the Transaction/Transport layer: a
// socket-backed SIP message stream with timeout-bounded receive, grounded
// on original_source/pyims/sip/transport.py and spec.md §4.G.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/sip"
)

const inboundQueueCapacity = 256

// Transaction is a bidirectional SIP message stream between a local and
// remote endpoint: a reassembly buffer, a FIFO of parsed inbound
// messages, and an error-sticky flag (spec.md §4.G).
type Transaction struct {
	mu      sync.Mutex
	buf     []byte
	errored bool
	err     error

	inbound chan *sip.Message
	done    chan struct{}
	doneOnce sync.Once

	sendFn  func([]byte) error
	closeFn func()

	log logging.Logger

	OnNewMessages func()
	OnError       func(error)
}

func newTransaction(log logging.Logger, sendFn func([]byte) error, closeFn func()) *Transaction {
	return &Transaction{
		inbound: make(chan *sip.Message, inboundQueueCapacity),
		done:    make(chan struct{}),
		sendFn:  sendFn,
		closeFn: closeFn,
		log:     log,
	}
}

// Send serializes msg and writes it; queueing-until-connected (TCP) or
// fixed-remote-address (UDP) behavior is handled by the underlying sendFn
// installed by the Transport.
func (t *Transaction) Send(msg *sip.Message) error {
	t.mu.Lock()
	if t.errored {
		t.mu.Unlock()
		return fmt.Errorf("transaction: send on errored transaction: %w", imserrors.ErrTransportFailure)
	}
	t.mu.Unlock()
	return t.sendFn(msg.Compose())
}

// AwaitMessage pops one message from the FIFO, waiting up to timeout if
// it is currently empty. On timeout it fails with ErrTimeout; on an
// errored transaction it fails with ErrTransportFailure.
func (t *Transaction) AwaitMessage(timeout time.Duration) (*sip.Message, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-t.inbound:
		return msg, nil
	case <-t.done:
		t.mu.Lock()
		err := t.err
		t.mu.Unlock()
		if err == nil {
			err = imserrors.ErrTransportFailure
		}
		return nil, fmt.Errorf("transaction: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("transaction: await_message: %w", imserrors.ErrTimeout)
	}
}

// onReadBytes appends to the reassembly buffer, repeatedly parses complete
// messages, and moves residual bytes to the front, per
// original_source/pyims/sip/transport.py's Transaction._on_read/
// _parse_messages.
func (t *Transaction) onReadBytes(data []byte) {
	t.mu.Lock()
	t.buf = append(t.buf, data...)
	buf := t.buf
	t.mu.Unlock()

	start := 0
	any := false
	for {
		msg, consumed, err := sip.Parse(buf, start)
		if err == sip.ErrNeedMoreBytes {
			break
		}
		if err != nil {
			t.onError(fmt.Errorf("transaction: parse: %w", err))
			return
		}
		select {
		case t.inbound <- msg:
		default:
			t.log.Warn("inbound message queue full, dropping message")
		}
		any = true
		start += consumed
	}

	t.mu.Lock()
	t.buf = append([]byte(nil), buf[start:]...)
	t.mu.Unlock()

	if any && t.OnNewMessages != nil {
		t.OnNewMessages()
	}
}

func (t *Transaction) onError(err error) {
	t.mu.Lock()
	if t.errored {
		t.mu.Unlock()
		return
	}
	t.errored = true
	t.err = err
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
	if t.OnError != nil {
		t.OnError(err)
	}
}

// Close drops the underlying socket and releases resources.
func (t *Transaction) Close() {
	t.closeFn()
	t.onError(fmt.Errorf("transaction: closed: %w", imserrors.ErrTransportFailure))
}
