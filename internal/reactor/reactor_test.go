package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegisterDispatchesReadable(t *testing.T) {
	rx, err := New(nil)
	require.NoError(t, err)
	defer rx.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))

	reg := rx.Register(fds[0])
	fired := make(chan struct{}, 1)
	reg.OnReadable = func() { fired <- struct{}{} }
	reg.MarkReadable(true, true)

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	require.NoError(t, rx.Run(200*time.Millisecond))

	select {
	case <-fired:
	default:
		t.Fatal("OnReadable was not invoked after Run")
	}

	reg.Close()
	unix.Close(fds[1])
}

func TestCloseInvokesOnClosed(t *testing.T) {
	rx, err := New(nil)
	require.NoError(t, err)
	defer rx.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	reg := rx.Register(fds[0])
	closed := make(chan struct{}, 1)
	reg.OnClosed = func() { closed <- struct{}{} }
	reg.Close()

	require.NoError(t, rx.Run(200*time.Millisecond))

	select {
	case <-closed:
	default:
		t.Fatal("OnClosed was not invoked for a closed registration")
	}
}

func TestRunForeverStopsOnStop(t *testing.T) {
	rx, err := New(nil)
	require.NoError(t, err)
	defer rx.Close()

	done := make(chan struct{})
	go func() {
		rx.RunForever(50 * time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	rx.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not return after Stop")
	}
}
