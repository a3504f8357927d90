//go:build linux
// +build linux

package main

import (
	"container/list"
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/panjf2000/gnet/v2/pkg/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/y001j/epollnet"
	socket "github.com/y001j/epollnet/sockets"
)

// Action is what the loop does with a connection after a callback.
type Action int

const (
	// None keeps the connection open.
	None Action = iota
	// Close disconnects the connection.
	Close
)

// EventHandler is the set of callbacks a loop drives.
type EventHandler interface {
	// OnOpen fires when a connection has been accepted and registered. out is
	// sent back to the peer.
	OnOpen(c *epollnet.Connection) (out []byte, action Action)

	// OnTraffic fires after data was read into the receive buffer. The handler
	// discards what it consumed.
	OnTraffic(c *epollnet.Connection) (action Action)

	// OnClose fires after the connection was disconnected. err is the last
	// known connection error.
	OnClose(c *epollnet.Connection, err error)
}

// BuiltinEventEngine implements every EventHandler callback as a no-op.
type BuiltinEventEngine struct{}

func (BuiltinEventEngine) OnOpen(_ *epollnet.Connection) (out []byte, action Action) {
	return
}

func (BuiltinEventEngine) OnTraffic(_ *epollnet.Connection) (action Action) {
	return
}

func (BuiltinEventEngine) OnClose(_ *epollnet.Connection, _ error) {}

// loop is one epoll instance with its own reuse-port listener. Connections are
// indexed by descriptor, the value carried in the epoll data word.
type loop struct {
	idx         int
	listenFd    int
	poller      *epollnet.Epoll
	table       *epollnet.Table
	handles     map[int]epollnet.Handle
	idle        *list.List
	idleTimeout time.Duration
	connOpts    []epollnet.Option
	sockOpts    []socket.Option
	handler     EventHandler
	logger      logging.Logger
}

func newLoop(idx int, addr string, cfg *epollnet.Config, connOpts []epollnet.Option, logger logging.Logger, handler EventHandler) (*loop, error) {
	listenOpts := append(cfg.SocketOptions(), socket.Option{SetSockOpt: socket.SetReuseport, Opt: 1})
	lfd, err := socket.TCPSocket(socket.Tcp4, addr, true, listenOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	poller, err := epollnet.OpenEpoll()
	if err != nil {
		_ = unix.Close(lfd)
		return nil, err
	}
	if err = poller.Add(lfd, epollnet.EventReadable); err != nil {
		_ = unix.Close(lfd)
		_ = poller.Close()
		return nil, err
	}
	return &loop{
		idx:         idx,
		listenFd:    lfd,
		poller:      poller,
		table:       epollnet.NewTable(1024),
		handles:     make(map[int]epollnet.Handle),
		idle:        list.New(),
		idleTimeout: time.Minute,
		connOpts:    connOpts,
		sockOpts:    cfg.SocketOptions(),
		handler:     handler,
		logger:      logger,
	}, nil
}

// run polls until ctx is done. The loop goroutine is locked to its thread and
// is the only driver of its connections' state.
func (lp *loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer lp.shutdown()

	events := make([]unix.EpollEvent, 128)
	for ctx.Err() == nil {
		n, err := unix.EpollWait(lp.poller.Fd(), events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := epollnet.Event(events[i].Events)
			if fd == lp.listenFd {
				lp.accept()
				continue
			}
			lp.serve(fd, ev)
		}
		lp.sweep(time.Now())
	}
	return nil
}

func (lp *loop) accept() {
	for {
		nfd, sa, err := socket.Accept(lp.listenFd)
		if err != nil {
			if err != unix.EAGAIN {
				lp.logger.Errorf("loop(%d) accept error(%v)", lp.idx, err)
			}
			return
		}
		if err = socket.ApplyOptions(nfd, lp.sockOpts...); err != nil {
			lp.logger.Warnf("loop(%d) socket options error(%v) socket(%d)", lp.idx, err, nfd)
		}

		c := epollnet.NewConnection(lp.poller, nfd, lp.connOpts...)
		c.SetPeerSockaddr(sa)
		c.SetAppID(lp.idx)
		c.SetLastActive(time.Now())
		if err = c.SetStatus(epollnet.Connected); err != nil {
			_ = c.SetStatus(epollnet.Disconnected)
			continue
		}
		lp.handles[nfd] = lp.table.Insert(c)
		c.SetListElement(lp.idle.PushBack(c))
		lp.logger.Debugf("loop(%d) accepted %s socket(%d)", lp.idx, c.PeerAddr(), nfd)

		out, action := lp.handler.OnOpen(c)
		if len(out) > 0 {
			if err = c.Send(out); err != nil {
				action = Close
			}
		}
		if action == Close {
			lp.closeConn(nfd, err)
		}
	}
}

func (lp *loop) serve(fd int, ev epollnet.Event) {
	h, ok := lp.handles[fd]
	if !ok {
		return
	}
	c, ok := lp.table.Get(h)
	if !ok {
		return
	}
	lp.idle.MoveToBack(c.ListElement())

	if err := c.HandleEvent(ev); err != nil {
		lp.closeConn(fd, err)
		return
	}
	// Edge-triggered: a full receive buffer may have left data in the socket,
	// so keep reading for as long as the handler makes room.
	for c.RecvBuffer().Len() > 0 {
		full := c.RecvBuffer().Free() == 0
		if lp.handler.OnTraffic(c) == Close {
			lp.closeConn(fd, nil)
			return
		}
		if !full || c.RecvBuffer().Free() == 0 {
			return
		}
		if _, err := c.Read(); err != nil {
			lp.closeConn(fd, err)
			return
		}
	}
}

// sweep disconnects connections idle for longer than idleTimeout. The idle
// list is ordered by last activity, oldest first.
func (lp *loop) sweep(now time.Time) {
	for e := lp.idle.Front(); e != nil; e = lp.idle.Front() {
		c := e.Value.(*epollnet.Connection)
		if now.Sub(c.LastActive()) < lp.idleTimeout {
			return
		}
		lp.logger.Infof("loop(%d) idle timeout socket(%d)", lp.idx, c.Fd())
		lp.closeConn(c.Fd(), nil)
	}
}

func (lp *loop) closeConn(fd int, cause error) {
	h, ok := lp.handles[fd]
	if !ok {
		return
	}
	c, _ := lp.table.Get(h)
	delete(lp.handles, fd)
	if e := c.ListElement(); e != nil {
		lp.idle.Remove(e)
		c.SetListElement(nil)
	}
	if errors.Is(cause, epollnet.ErrPeerClosed) || cause == io.EOF {
		cause = nil
	}
	if err := c.SetStatus(epollnet.Disconnected); err != nil {
		lp.logger.Warnf("loop(%d) disconnect error(%v)", lp.idx, err)
	}
	lp.handler.OnClose(c, cause)
	if err := lp.table.Reclaim(h); err != nil {
		// Still referenced by a sender; the slot is retried on shutdown.
		lp.logger.Debugf("loop(%d) reclaim deferred: %v", lp.idx, err)
	}
}

func (lp *loop) shutdown() {
	for fd := range lp.handles {
		lp.closeConn(fd, nil)
	}
	var pending []epollnet.Handle
	lp.table.Range(func(h epollnet.Handle, _ *epollnet.Connection) bool {
		pending = append(pending, h)
		return true
	})
	for _, h := range pending {
		if err := lp.table.Reclaim(h); err != nil {
			lp.logger.Warnf("loop(%d) leaked connection: %v", lp.idx, err)
		}
	}
	_ = unix.Close(lp.listenFd)
	_ = lp.poller.Close()
}
