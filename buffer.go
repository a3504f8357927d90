package epollnet

import (
	"github.com/panjf2000/gnet/v2/pkg/pool/byteslice"
	"github.com/pkg/errors"
)

// MaxBufferCap is the largest capacity a connection buffer may be allocated with.
const MaxBufferCap = 64 << 20

// Buffer is a fixed-capacity byte region with a used-length counter.
//
// The zero value is an absent buffer; storage is taken from the byte-slice pool
// on the first EnsureAllocated and given back by Release. Buffer is not safe for
// concurrent use, the owner serializes access (the send buffer is only touched
// under the connection lock, the receive buffer only by the event loop).
type Buffer struct {
	buf  []byte
	used int
}

// EnsureAllocated allocates exactly capacity bytes if the buffer is absent.
// It is a no-op when the buffer is already allocated, the capacity fixed at the
// first allocation is kept.
func (b *Buffer) EnsureAllocated(capacity int) error {
	if b.buf != nil {
		return nil
	}
	if capacity <= 0 || capacity > MaxBufferCap {
		return errors.Wrapf(ErrAllocationFailure, "invalid capacity %d", capacity)
	}
	b.buf = byteslice.Get(capacity)
	b.used = 0
	return nil
}

// Release gives the storage back and resets used and capacity to zero.
func (b *Buffer) Release() {
	if b.buf != nil {
		byteslice.Put(b.buf)
		b.buf = nil
	}
	b.used = 0
}

// Allocated reports whether the buffer currently owns storage.
func (b *Buffer) Allocated() bool {
	return b.buf != nil
}

// Len returns the number of used bytes.
func (b *Buffer) Len() int {
	return b.used
}

// Cap returns the fixed capacity, zero when absent.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Free returns the number of bytes that can still be appended.
func (b *Buffer) Free() int {
	return len(b.buf) - b.used
}

// Bytes returns the used region. It is only valid until the next mutation.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.used]
}

// Available returns the unused tail, to be filled by a read and committed with Advance.
func (b *Buffer) Available() []byte {
	return b.buf[b.used:]
}

// Append copies p behind the used region. The caller checks Free beforehand,
// bytes that do not fit are dropped and the count copied is returned.
func (b *Buffer) Append(p []byte) int {
	n := copy(b.buf[b.used:], p)
	b.used += n
	return n
}

// Advance marks n more bytes of Available as used.
func (b *Buffer) Advance(n int) {
	if n < 0 || b.used+n > len(b.buf) {
		panic("epollnet: buffer advance out of range")
	}
	b.used += n
}

// Discard drops the first n used bytes and moves the remainder to offset 0.
func (b *Buffer) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= b.used {
		b.used = 0
		return
	}
	b.used = copy(b.buf, b.buf[n:b.used])
}
