//go:build linux
// +build linux

package epollnet

import (
	"container/list"
	"io"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2/pkg/logging"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	socket "github.com/y001j/epollnet/sockets"
)

// Connection wraps one non-blocking socket registered on an epoll instance.
//
// The event loop is the sole driver of SetStatus, HandleEvent and Read and the
// only user of the receive buffer. Send may be called from any goroutine,
// concurrently with other Sends and with the loop's Flush. The mutex mu is the
// send-buffer lock: it guards the send backlog, the interest set, the
// registration state and the descriptor while it is being closed, and is never
// held across anything but a bounded, non-blocking system call.
type Connection struct {
	fd     int           // file descriptor
	poller Poller        // epoll instance the descriptor is registered on
	sys    socketOps     // socket system calls
	opts   *Options      // buffer capacities and logger
	logger logging.Logger

	mu       sync.Mutex
	sendBuf  Buffer        // backlog of accepted but unsent bytes
	interest atomic.Uint32 // written under mu
	reg      Registration  // guarded by mu

	status  atomic.Int32
	recvBuf Buffer // owned by the event loop
	refs    atomic.Int64

	localAddr socket.Address
	peerAddr  socket.Address

	appID      int
	ctx        interface{}   // user-defined context
	elem       *list.Element // slot in an external idle list
	lastActive atomic.Int64  // unix nanoseconds
}

// NewConnection wraps fd, which must already be non-blocking. The connection
// starts Disconnected and Unregistered; SetStatus(Connected) or
// SetStatus(Connecting) registers it on poller.
func NewConnection(poller Poller, fd int, options ...Option) *Connection {
	opts := loadOptions(options...)
	return &Connection{
		fd:     fd,
		poller: poller,
		sys:    unixSocket{},
		opts:   opts,
		logger: opts.Logger,
	}
}

// Fd returns the underlying file descriptor, -1 once closed.
func (c *Connection) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// Status returns the lifecycle state.
func (c *Connection) Status() Status {
	return Status(c.status.Load())
}

// Connected reports whether the status is Connected.
func (c *Connection) Connected() bool {
	return c.Status() == Connected
}

// Interest returns the interest set last pushed to the poller.
func (c *Connection) Interest() Event {
	return Event(c.interest.Load())
}

// Registration returns the state of the descriptor in the poller.
func (c *Connection) Registration() Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg
}

// SetStatus records status and performs the transition's side effects:
//
//   - Connected registers for readable, edge-triggered and priority events,
//     allocates the receive buffer and records the local address.
//   - Disconnected clears the interest set, which removes the registration,
//     closes the descriptor and releases both buffers.
//   - Connecting enables only the writable interest, to learn of connect completion.
//
// The returned error is the result of the registration call. The internal
// interest and registration state reflect the requested transition even when
// that call fails.
func (c *Connection) SetStatus(status Status) error {
	c.status.Store(int32(status))
	switch status {
	case Connected:
		return c.open()
	case Disconnected:
		return c.release()
	case Connecting:
		return c.EnableWriting()
	}
	return nil
}

func (c *Connection) open() error {
	c.mu.Lock()
	interest := readInterest
	if c.sendBuf.Len() > 0 {
		// Queued while connecting.
		interest |= EventWritable
	}
	c.interest.Store(uint32(interest))
	err := c.update()
	c.mu.Unlock()

	if aerr := c.recvBuf.EnsureAllocated(c.opts.RecvBufferCap); aerr != nil {
		c.logger.Errorf("init recv buffer socket(%d): %v", c.fd, aerr)
	}

	sa, serr := c.sys.getsockname(c.fd)
	if serr != nil {
		c.logger.Errorf("getsockname error(%v) socket(%d)", serr, c.fd)
		return err
	}
	if addr, ok := socket.AddressFromSockaddr(sa); ok {
		c.localAddr = addr
	} else {
		c.logger.Debugf("socket(%d) local address is not an inet address", c.fd)
	}
	return err
}

func (c *Connection) release() (err error) {
	c.mu.Lock()
	c.interest.Store(uint32(EventNone))
	err = c.update()
	if c.fd >= 0 {
		if cerr := c.sys.close(c.fd); cerr != nil {
			err = multierr.Append(err, os.NewSyscallError("close", cerr))
		}
		c.fd = -1
	}
	c.sendBuf.Release()
	c.mu.Unlock()

	c.recvBuf.Release()
	return err
}

// EnableWriting adds the writable bit to the interest set.
func (c *Connection) EnableWriting() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableWriting()
}

// DisableWriting removes the writable bit from the interest set.
func (c *Connection) DisableWriting() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disableWriting()
}

func (c *Connection) enableWriting() error {
	interest := c.Interest()
	if interest.Has(EventWritable) {
		c.logger.Debugf("already enable_writing socket(%d)", c.fd)
		return nil
	}
	c.interest.Store(uint32(interest | EventWritable))
	return c.update()
}

func (c *Connection) disableWriting() error {
	interest := c.Interest()
	if !interest.Has(EventWritable) {
		c.logger.Debugf("already disable_writing socket(%d)", c.fd)
		return nil
	}
	c.interest.Store(uint32(interest &^ EventWritable))
	return c.update()
}

// update pushes the current interest set to the poller. Callers hold mu.
func (c *Connection) update() error {
	interest := c.Interest()
	op, next := c.reg.next(interest)
	c.reg = next

	var err error
	switch op {
	case opAdd:
		err = c.poller.Add(c.fd, interest)
	case opMod:
		err = c.poller.Mod(c.fd, interest)
	case opDel:
		err = c.poller.Del(c.fd)
	}
	if err != nil {
		c.logger.Errorf("update events %s %s error(%v) socket(%d)", op, interest, err, c.fd)
		return errors.Wrapf(err, "%s socket(%d)", op, c.fd)
	}
	return nil
}

// Flush writes the pending backlog. Whatever the socket does not take is kept
// at the front of the backlog and the writable interest stays enabled; a fully
// drained backlog disables it.
func (c *Connection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Interest() == EventNone {
		c.logger.Warnf("post send already closed socket(%d)", c.fd)
		return ErrClosedConnection
	}

	pending := c.sendBuf.Len()
	if pending == 0 {
		c.logger.Debugf("post send no data socket(%d)", c.fd)
		return nil
	}

	n, err := c.write(c.sendBuf.Bytes())
	c.sendBuf.Discard(n)
	if err != nil {
		return err
	}

	if c.sendBuf.Len() == 0 {
		_ = c.disableWriting()
	} else if !c.Interest().Has(EventWritable) {
		_ = c.enableWriting()
	}
	return nil
}

// Send writes p to the socket, or queues it behind the existing backlog.
//
// Bytes reach the socket in the order Send accepted them. An empty payload is
// a no-op. A payload that does not fit in the backlog is rejected whole with
// ErrBufferOverflow and the caller must apply backpressure. A payload longer
// than Options.SendBufferCap is rejected before any write is attempted, even
// when nothing is queued, since its unsent tail could never be buffered.
//
// Write errors match both ErrSendFailure and the underlying errno with errors.Is.
func (c *Connection) Send(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Interest() == EventNone {
		c.logger.Warnf("post_send already closed socket(%d)", c.fd)
		return ErrClosedConnection
	}

	if pending := c.sendBuf.Len(); pending > 0 {
		c.logger.Debugf("has left %d bytes, socket(%d)", pending, c.fd)
		if len(p) > c.sendBuf.Free() {
			c.logger.Warnf("buffer overflow socket(%d)", c.fd)
			return errors.WithMessagef(ErrBufferOverflow, "%d pending, %d more requested", pending, len(p))
		}
		c.sendBuf.Append(p)
		return nil
	}

	if len(p) > c.opts.SendBufferCap {
		c.logger.Warnf("buffer overflow socket(%d)", c.fd)
		return errors.WithMessagef(ErrBufferOverflow, "payload of %d bytes exceeds capacity %d", len(p), c.opts.SendBufferCap)
	}

	n, err := c.write(p)
	if err != nil {
		return err
	}
	if n == len(p) {
		return nil
	}

	if err = c.sendBuf.EnsureAllocated(c.opts.SendBufferCap); err != nil {
		c.logger.Errorf("post_send init send buffer error(%v) socket(%d)", err, c.fd)
		return err
	}
	c.sendBuf.Append(p[n:])
	c.logger.Debugf("send buffer full total %d/%d socket(%d)", n, len(p), c.fd)
	_ = c.enableWriting()
	return nil
}

// write writes p until it is fully written or the socket would block.
// Interrupted calls are retried. Callers hold mu.
func (c *Connection) write(p []byte) (total int, err error) {
	for total < len(p) {
		n, werr := c.sys.write(c.fd, p[total:])
		if werr != nil {
			if werr == unix.EINTR {
				continue
			}
			if werr == unix.EAGAIN {
				break
			}
			c.logger.Errorf("post send error(%v) socket(%d)", werr, c.fd)
			return total, &sysError{kind: ErrSendFailure, err: os.NewSyscallError("write", werr)}
		}
		if n <= 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Read fills the receive buffer from the socket until the socket would block
// or the buffer is full, and returns the number of bytes read. The receive
// buffer is allocated on first use if the transition to Connected could not
// allocate it. io.EOF reports an orderly shutdown by the peer.
func (c *Connection) Read() (int, error) {
	if c.Interest() == EventNone {
		return 0, ErrClosedConnection
	}
	if err := c.recvBuf.EnsureAllocated(c.opts.RecvBufferCap); err != nil {
		c.logger.Errorf("init recv buffer socket(%d): %v", c.fd, err)
		return 0, err
	}

	total := 0
	for c.recvBuf.Free() > 0 {
		n, err := c.sys.read(c.fd, c.recvBuf.Available())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				break
			}
			return total, &sysError{kind: ErrRecvFailure, err: os.NewSyscallError("read", err)}
		}
		if n == 0 {
			return total, io.EOF
		}
		c.recvBuf.Advance(n)
		total += n
	}
	return total, nil
}

// RecvBuffer returns the receive buffer. Consumers Discard what they have processed.
func (c *Connection) RecvBuffer() *Buffer {
	return &c.recvBuf
}

// Pending returns the number of backlog bytes waiting for the socket to become writable.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendBuf.Len()
}

// HandleEvent is the readiness callback the event loop invokes with the events
// epoll reported for this connection. A non-nil error means the connection must
// be driven to Disconnected; a failed connect has already been.
func (c *Connection) HandleEvent(ev Event) error {
	c.SetLastActive(time.Now())

	if c.Status() == Connecting {
		if !ev.Has(EventWritable | EventError | EventHangup) {
			return nil
		}
		if err := c.sys.socketError(c.fd); err != nil {
			_ = c.SetStatus(Disconnected)
			return errors.Wrap(err, "connect")
		}
		return c.SetStatus(Connected)
	}

	if ev.Has(EventReadable | EventPriority) {
		if _, err := c.Read(); err != nil {
			if err == io.EOF {
				return ErrPeerClosed
			}
			return err
		}
	}

	if ev.Has(EventWritable) {
		if err := c.Flush(); err != nil {
			return err
		}
	}

	if ev.Has(EventError|EventHangup) && !ev.Has(EventReadable) {
		if err := c.sys.socketError(c.fd); err != nil {
			return errors.WithMessage(ErrPeerClosed, err.Error())
		}
		return ErrPeerClosed
	}
	return nil
}

// SetTCPNoDelay toggles Nagle's algorithm on the socket.
func (c *Connection) SetTCPNoDelay(noDelay bool) error {
	if err := c.sys.setNoDelay(c.fd, noDelay); err != nil {
		c.logger.Errorf("set set_tcp_no_delay error(%v) socket(%d)", err, c.fd)
		return err
	}
	return nil
}

// Acquire takes a reference that keeps the connection from being reclaimed.
func (c *Connection) Acquire() {
	c.refs.Inc()
}

// Release drops a reference. Releasing more than was acquired leaves the
// count at zero and returns ErrRefcountUnderflow.
func (c *Connection) Release() error {
	for {
		refs := c.refs.Load()
		if refs <= 0 {
			c.logger.Errorf("reference count underflow socket(%d)", c.fd)
			return ErrRefcountUnderflow
		}
		if c.refs.CAS(refs, refs-1) {
			return nil
		}
	}
}

// IsReclaimable reports whether no reference is held.
func (c *Connection) IsReclaimable() bool {
	return c.refs.Load() == 0
}

// Refs returns the current reference count.
func (c *Connection) Refs() int64 {
	return c.refs.Load()
}

// LocalAddr returns the local address recorded when the connection became Connected.
func (c *Connection) LocalAddr() socket.Address {
	return c.localAddr
}

// PeerAddr returns the remote address set by the accept/connect path.
func (c *Connection) PeerAddr() socket.Address {
	return c.peerAddr
}

func (c *Connection) SetPeerAddr(addr socket.Address) {
	c.peerAddr = addr
}

// SetPeerSockaddr records the remote address returned by accept.
func (c *Connection) SetPeerSockaddr(sa unix.Sockaddr) {
	if addr, ok := socket.AddressFromSockaddr(sa); ok {
		c.peerAddr = addr
	}
}

func (c *Connection) AppID() int {
	return c.appID
}

func (c *Connection) SetAppID(id int) {
	c.appID = id
}

// Context returns a user-defined context.
func (c *Connection) Context() interface{} {
	return c.ctx
}

// SetContext sets a user-defined context. The connection never looks at it.
func (c *Connection) SetContext(ctx interface{}) {
	c.ctx = ctx
}

// ListElement returns the element linking the connection into an external list.
func (c *Connection) ListElement() *list.Element {
	return c.elem
}

func (c *Connection) SetListElement(e *list.Element) {
	c.elem = e
}

// LastActive returns the time of the last readiness event or SetLastActive call.
func (c *Connection) LastActive() time.Time {
	ns := c.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Connection) SetLastActive(t time.Time) {
	c.lastActive.Store(t.UnixNano())
}
