package epollnet

import (
	socket "github.com/y001j/epollnet/sockets"
	"golang.org/x/sys/unix"
)

// socketOps is the slice of the OS socket layer a connection uses.
// Would-block and interrupted calls surface as unix.EAGAIN and unix.EINTR.
type socketOps interface {
	write(fd int, p []byte) (int, error)
	read(fd int, p []byte) (int, error)
	close(fd int) error
	getsockname(fd int) (unix.Sockaddr, error)
	socketError(fd int) error
	setNoDelay(fd int, noDelay bool) error
}

type unixSocket struct{}

func (unixSocket) write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func (unixSocket) read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func (unixSocket) close(fd int) error {
	return unix.Close(fd)
}

func (unixSocket) getsockname(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}

func (unixSocket) socketError(fd int) error {
	return socket.SocketError(fd)
}

func (unixSocket) setNoDelay(fd int, noDelay bool) error {
	v := 0
	if noDelay {
		v = 1
	}
	return socket.SetNoDelay(fd, v)
}
