//go:build linux
// +build linux

package epollnet

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	return fds[0], fds[1]
}

func waitEvent(t *testing.T, ep *Epoll, fd int, want Event) Event {
	t.Helper()
	events := make([]unix.EpollEvent, 8)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := unix.EpollWait(ep.Fd(), events, 100)
		if err == unix.EINTR {
			continue
		}
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			ev := Event(events[i].Events)
			if int(events[i].Fd) == fd && ev.Has(want) {
				return ev
			}
		}
	}
	t.Fatalf("no %s event for socket(%d)", want, fd)
	return EventNone
}

func TestEpollReadAndWrite(t *testing.T) {
	ep, err := OpenEpoll()
	require.NoError(t, err)
	defer ep.Close()

	local, remote := socketPair(t)
	c := NewConnection(ep, local, WithRecvBufferCap(64), WithSendBufferCap(1<<20))
	require.NoError(t, c.SetStatus(Connected))
	assert.Equal(t, Registered, c.Registration())
	assert.True(t, c.LocalAddr().IsZero(), "unix sockets have no inet address")

	_, err = unix.Write(remote, []byte("ping"))
	require.NoError(t, err)
	ev := waitEvent(t, ep, local, EventReadable)
	require.NoError(t, c.HandleEvent(ev))
	assert.Equal(t, []byte("ping"), c.RecvBuffer().Bytes())
	c.RecvBuffer().Discard(c.RecvBuffer().Len())

	require.NoError(t, c.Send([]byte("pong")))
	buf := make([]byte, 16)
	n, err := unix.Read(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	require.NoError(t, unix.Shutdown(remote, unix.SHUT_WR))
	ev = waitEvent(t, ep, local, EventReadable)
	assert.ErrorIs(t, c.HandleEvent(ev), ErrPeerClosed)

	require.NoError(t, c.SetStatus(Disconnected))
	assert.Equal(t, Removed, c.Registration())
	assert.Equal(t, -1, c.Fd())
}

func TestEpollBacklogDrainsOnWritable(t *testing.T) {
	ep, err := OpenEpoll()
	require.NoError(t, err)
	defer ep.Close()

	local, remote := socketPair(t)
	require.NoError(t, unix.SetsockoptInt(local, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))
	c := NewConnection(ep, local, WithRecvBufferCap(64), WithSendBufferCap(1<<20))
	require.NoError(t, c.SetStatus(Connected))
	defer c.SetStatus(Disconnected)

	const senders, chunks, chunkSize = 4, 64, 1024
	var g errgroup.Group
	for s := 0; s < senders; s++ {
		seed := byte(s * 50)
		g.Go(func() error {
			for i := 0; i < chunks; i++ {
				if err := c.Send(payload(chunkSize, seed)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Greater(t, c.Pending(), 0, "socket buffer is smaller than the payload")
	assert.True(t, c.Interest().Has(EventWritable))

	var received bytes.Buffer
	buf := make([]byte, 8192)
	total := senders * chunks * chunkSize
	deadline := time.Now().Add(5 * time.Second)
	for received.Len() < total && time.Now().Before(deadline) {
		n, err := unix.Read(remote, buf)
		if err == unix.EAGAIN {
			ev := waitEvent(t, ep, local, EventWritable)
			require.NoError(t, c.HandleEvent(ev))
			continue
		}
		require.NoError(t, err)
		received.Write(buf[:n])
	}
	require.Equal(t, total, received.Len())
	assert.Equal(t, 0, c.Pending())
	assert.False(t, c.Interest().Has(EventWritable))

	// Chunks are written whole and in order, so every chunk-aligned slice is one
	// sender's payload.
	data := received.Bytes()
	for off := 0; off < total; off += chunkSize {
		chunk := data[off : off+chunkSize]
		assert.Equal(t, payload(chunkSize, chunk[0]), chunk, "chunk at %d", off)
	}
}
