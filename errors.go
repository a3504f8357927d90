package epollnet

import (
	"github.com/pkg/errors"
)

var (
	// ErrAllocationFailure is returned when a connection buffer could not be allocated.
	// It is not fatal, the allocation is retried the next time the buffer is needed.
	ErrAllocationFailure = errors.New("buffer allocation failure")

	// ErrClosedConnection is returned when an operation is attempted on a connection
	// that has no interest registered anymore. The caller must stop using the handle.
	ErrClosedConnection = errors.New("connection is closed")

	// ErrBufferOverflow is returned when a payload does not fit in the remaining send
	// backlog capacity. The whole payload is rejected and must be considered undelivered.
	ErrBufferOverflow = errors.New("send buffer overflow")

	// ErrSendFailure wraps an unrecoverable write error. The caller must drive the
	// connection to Disconnected.
	ErrSendFailure = errors.New("send failure")

	// ErrRecvFailure wraps an unrecoverable read error.
	ErrRecvFailure = errors.New("recv failure")

	// ErrPeerClosed is returned when the peer shut the connection down or the socket reported a hang-up.
	ErrPeerClosed = errors.New("connection closed by peer")

	// ErrRefcountUnderflow is returned when Release is called more times than Acquire.
	ErrRefcountUnderflow = errors.New("connection reference count underflow")

	// ErrStaleHandle is returned by Table when a handle refers to a slot that has been reclaimed.
	ErrStaleHandle = errors.New("stale connection handle")

	// ErrConnectionInUse is returned by Table.Reclaim for a connection that is still
	// referenced or not yet disconnected.
	ErrConnectionInUse = errors.New("connection is still in use")
)

// sysError reports a failed system call as one of the failure sentinels while
// keeping the *os.SyscallError, and through it the errno, in the chain.
type sysError struct {
	kind error
	err  error
}

func (e *sysError) Error() string {
	return e.err.Error() + ": " + e.kind.Error()
}

func (e *sysError) Unwrap() error {
	return e.err
}

func (e *sysError) Is(target error) bool {
	return target == e.kind
}
