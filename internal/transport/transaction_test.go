package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/logging"
	"github.com/arzzra/imsphone/internal/sip"
)

func sampleResponse(cseq uint32) *sip.Message {
	msg := sip.NewResponse(200)
	msg.Add(sip.NewFrom("Alice", "sip:alice@example.com", "1"))
	msg.Add(sip.NewTo("Bob", "sip:bob@example.com", "2"))
	msg.Add(&sip.CallIDHeader{Value: "abc123"})
	msg.Add(&sip.CSeqHeader{Sequence: cseq, Method: sip.MethodRegister})
	msg.Add(&sip.ViaHeader{Transport: "UDP", Host: "10.0.0.1", Port: 5060, Branch: "z9hG4bK-1"})
	return msg
}

func cseqOf(t *testing.T, msg *sip.Message) uint32 {
	t.Helper()
	h, ok := msg.First("CSeq")
	require.True(t, ok)
	return h.(*sip.CSeqHeader).Sequence
}

func newTestTransaction() (*Transaction, *[][]byte) {
	var mu sync.Mutex
	var sent [][]byte
	tx := newTransaction(logging.Nop(), func(data []byte) error {
		mu.Lock()
		sent = append(sent, data)
		mu.Unlock()
		return nil
	}, func() {})
	return tx, &sent
}

func TestTransactionAwaitMessageDeliversParsedBytes(t *testing.T) {
	tx, _ := newTestTransaction()
	tx.onReadBytes(sampleResponse(1).Compose())

	msg, err := tx.AwaitMessage(time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, msg.StatusCode)
}

func TestTransactionAwaitMessageTimesOut(t *testing.T) {
	tx, _ := newTestTransaction()
	_, err := tx.AwaitMessage(50 * time.Millisecond)
	require.ErrorIs(t, err, imserrors.ErrTimeout)
}

func TestTransactionSendWritesComposedBytes(t *testing.T) {
	tx, sent := newTestTransaction()
	msg := sampleResponse(1)
	require.NoError(t, tx.Send(msg))
	require.Len(t, *sent, 1)
	require.Equal(t, msg.Compose(), (*sent)[0])
}

func TestTransactionOnNewMessagesFiresOncePerBatch(t *testing.T) {
	tx, _ := newTestTransaction()
	fired := 0
	tx.OnNewMessages = func() { fired++ }

	wire := append(sampleResponse(1).Compose(), sampleResponse(2).Compose()...)
	tx.onReadBytes(wire)

	require.Equal(t, 1, fired)
	first, err := tx.AwaitMessage(time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, cseqOf(t, first))
	second, err := tx.AwaitMessage(time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 2, cseqOf(t, second))
}

func TestTransactionCloseFailsPendingAwait(t *testing.T) {
	tx, _ := newTestTransaction()
	done := make(chan error, 1)
	go func() {
		_, err := tx.AwaitMessage(2 * time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	tx.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, imserrors.ErrTransportFailure)
	case <-time.After(time.Second):
		t.Fatal("AwaitMessage did not unblock after Close")
	}

	require.ErrorIs(t, tx.Send(sampleResponse(1)), imserrors.ErrTransportFailure)
}
