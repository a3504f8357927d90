//go:build linux
// +build linux

package epollnet

import (
	"os"

	"golang.org/x/sys/unix"
)

// Poller is the registration side of the readiness multiplexer owned by the
// event loop. Connections only ever add, modify or delete their own descriptor.
type Poller interface {
	Add(fd int, ev Event) error
	Mod(fd int, ev Event) error
	Del(fd int) error
}

// Epoll is a Poller backed by an epoll instance. The descriptor is stored as
// the event data, the loop maps it back to its connection.
type Epoll struct {
	fd int
}

// OpenEpoll creates a close-on-exec epoll instance.
func OpenEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Epoll{fd: fd}, nil
}

// Fd returns the epoll descriptor, for the loop's epoll_wait.
func (p *Epoll) Fd() int {
	return p.fd
}

func (p *Epoll) Add(fd int, ev Event) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *Epoll) Mod(fd int, ev Event) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *Epoll) Del(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, EventNone)
}

func (p *Epoll) ctl(op, fd int, ev Event) error {
	event := unix.EpollEvent{Events: uint32(ev), Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl", unix.EpollCtl(p.fd, op, fd, &event))
}

// Close closes the epoll instance.
func (p *Epoll) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}
