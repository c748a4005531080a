package call

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReadable struct {
	chunks [][]byte
}

func (f *fakeReadable) StartRead(callback func(data []byte)) {
	for _, c := range f.chunks {
		callback(c)
	}
	callback(nil)
}

type fakeWritable struct {
	writes [][]byte
}

func (f *fakeWritable) Write(data []byte) {
	f.writes = append(f.writes, append([]byte(nil), data...))
}

func TestCallOutStreamPlaysQueueSequentially(t *testing.T) {
	out := &CallOutStream{}
	var finished []int

	var received [][]byte
	out.StartRead(func(data []byte) {
		if data != nil {
			received = append(received, data)
		}
	})

	out.AttachStream(&fakeReadable{chunks: [][]byte{[]byte("a"), []byte("b")}}, func() { finished = append(finished, 1) })
	out.AttachStream(&fakeReadable{chunks: [][]byte{[]byte("c")}}, func() { finished = append(finished, 2) })

	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, received)
	require.Equal(t, []int{1, 2}, finished)
}

func TestCallOutStreamEmptyQueueSignalsNil(t *testing.T) {
	out := &CallOutStream{}
	nilSeen := false
	out.StartRead(func(data []byte) {
		if data == nil {
			nilSeen = true
		}
	})
	require.True(t, nilSeen)
}

func TestCallInStreamBuffersUntilAttach(t *testing.T) {
	in := &CallInStream{}
	in.Write([]byte("hello "))
	in.Write([]byte("world"))

	sink := &fakeWritable{}
	in.Attach(sink)

	require.Len(t, sink.writes, 1)
	require.Equal(t, "hello world", string(sink.writes[0]))

	in.Write([]byte("!"))
	require.Len(t, sink.writes, 2)
	require.Equal(t, "!", string(sink.writes[1]))
}

func TestCallInStreamForwardsDirectlyWhenAlreadyAttached(t *testing.T) {
	in := &CallInStream{}
	sink := &fakeWritable{}
	in.Attach(sink)
	in.Write([]byte("x"))
	require.Len(t, sink.writes, 1)
	require.Equal(t, "x", string(sink.writes[0]))
}
