// Package call implements the media pipeline: SDP offer/answer,
// UDP socket allocation, RTP stream wiring, and source/sink splicing
// (component I), grounded on original_source/pyims/sip/{call,rtp_call}.py
// and spec.md §4.I.
package call

import (
	"bytes"
	"sync"
)

// ReadableStream is a push-style byte source: it calls back with each
// chunk, and nil to signal end-of-stream, grounded on
// original_source/pyims/nio/streams.py's ReadableStream[bytes].
type ReadableStream interface {
	StartRead(callback func(data []byte))
}

// WritableStream is a byte sink.
type WritableStream interface {
	Write(data []byte)
}

// CallOutStream is the "Playlist source": a queue of ReadableStreams
// played sequentially; when one ends, the next begins; when the queue
// empties, the downstream callback is invoked with nil ("no more data"),
// grounded on original_source/pyims/sip/rtp_call.py's CallOutStream.
type CallOutStream struct {
	mu    sync.Mutex
	queue []queuedStream
	cb    func(data []byte)
}

type queuedStream struct {
	stream   ReadableStream
	onFinish func()
}

// AttachStream appends a stream to the playlist; onFinish (optional) runs
// when that stream reaches end-of-data.
func (c *CallOutStream) AttachStream(stream ReadableStream, onFinish func()) {
	c.mu.Lock()
	empty := len(c.queue) == 0
	c.queue = append(c.queue, queuedStream{stream: stream, onFinish: onFinish})
	c.mu.Unlock()
	if empty && c.cb != nil {
		c.startNext()
	}
}

// StartRead begins delivering playlist data to callback.
func (c *CallOutStream) StartRead(callback func(data []byte)) {
	c.cb = callback
	c.startNext()
}

func (c *CallOutStream) startNext() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		if c.cb != nil {
			c.cb(nil)
		}
		return
	}
	next := c.queue[0]
	c.mu.Unlock()
	next.stream.StartRead(c.onData)
}

func (c *CallOutStream) onData(data []byte) {
	if data != nil {
		if c.cb != nil {
			c.cb(data)
		}
		return
	}
	c.mu.Lock()
	var finished queuedStream
	if len(c.queue) > 0 {
		finished = c.queue[0]
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()
	if finished.onFinish != nil {
		finished.onFinish()
	}
	c.startNext()
}

// CallInStream is the "Buffered sink": before an actual sink is attached,
// writes accumulate in an in-memory buffer; on Attach, buffered bytes are
// flushed first, grounded on
// original_source/pyims/sip/rtp_call.py's CallInStream.
type CallInStream struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	sink   WritableStream
}

// Write buffers data until a sink is attached, then forwards directly.
func (c *CallInStream) Write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil {
		c.buffer.Write(data)
		return
	}
	c.sink.Write(data)
}

// Attach flushes any buffered bytes to sink, then forwards all further
// writes to it directly.
func (c *CallInStream) Attach(sink WritableStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
	if c.buffer.Len() > 0 {
		sink.Write(c.buffer.Bytes())
		c.buffer.Reset()
	}
}
