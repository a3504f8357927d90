//go:build linux
// +build linux

package epollnet

import "github.com/pkg/errors"

// Handle is a stable reference to a Table slot. The low 32 bits hold the slot
// index and the high 32 bits its generation, so a handle kept after its
// connection was reclaimed never resolves to the slot's next occupant.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

type slot struct {
	gen  uint32
	conn *Connection
}

// Table is the arena owning the connections of one event loop.
//
// Only the loop goroutine uses a Table. Other goroutines holding a connection
// Acquire it; Reclaim refuses to free a slot while any reference is held or
// before the connection was driven to Disconnected.
type Table struct {
	slots []slot
	free  []uint32
	count int
}

// NewTable returns a Table with room for sizeHint connections.
func NewTable(sizeHint int) *Table {
	return &Table{slots: make([]slot, 0, sizeHint)}
}

// Insert stores c in a free slot and returns its handle.
func (t *Table) Insert(c *Connection) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1})
	}
	t.slots[idx].conn = c
	t.count++
	return makeHandle(idx, t.slots[idx].gen)
}

// Get returns the connection stored under h.
func (t *Table) Get(h Handle) (*Connection, bool) {
	s := t.lookup(h)
	if s == nil {
		return nil, false
	}
	return s.conn, true
}

// Reclaim frees the slot of h. The connection must be Disconnected and
// hold no reference, otherwise ErrConnectionInUse is returned and the slot is kept.
func (t *Table) Reclaim(h Handle) error {
	s := t.lookup(h)
	if s == nil {
		return ErrStaleHandle
	}
	if status := s.conn.Status(); status != Disconnected {
		return errors.WithMessagef(ErrConnectionInUse, "status %s", status)
	}
	if !s.conn.IsReclaimable() {
		return errors.WithMessagef(ErrConnectionInUse, "%d references held", s.conn.Refs())
	}
	s.conn = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, h.index())
	t.count--
	return nil
}

// Len returns the number of live connections.
func (t *Table) Len() int {
	return t.count
}

// Range calls fn for every live connection until fn returns false.
func (t *Table) Range(fn func(h Handle, c *Connection) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.conn == nil {
			continue
		}
		if !fn(makeHandle(uint32(i), s.gen), s.conn) {
			return
		}
	}
}

func (t *Table) lookup(h Handle) *slot {
	idx := h.index()
	if int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if s.conn == nil || s.gen != h.generation() {
		return nil
	}
	return s
}
