//go:build linux
// +build linux

package epollnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInsertGet(t *testing.T) {
	table := NewTable(4)
	a, b := newTestConn(t), newTestConn(t)

	ha := table.Insert(a.Connection)
	hb := table.Insert(b.Connection)
	assert.NotEqual(t, ha, hb)
	assert.Equal(t, 2, table.Len())

	got, ok := table.Get(ha)
	require.True(t, ok)
	assert.Same(t, a.Connection, got)
}

func TestTableReclaim(t *testing.T) {
	table := NewTable(0)
	c := newTestConn(t)
	require.NoError(t, c.SetStatus(Connected))
	h := table.Insert(c.Connection)

	assert.ErrorIs(t, table.Reclaim(h), ErrConnectionInUse, "still connected")

	c.Acquire()
	require.NoError(t, c.SetStatus(Disconnected))
	assert.ErrorIs(t, table.Reclaim(h), ErrConnectionInUse, "reference held")
	_, ok := table.Get(h)
	assert.True(t, ok)

	require.NoError(t, c.Release())
	require.NoError(t, table.Reclaim(h))
	assert.Equal(t, 0, table.Len())

	_, ok = table.Get(h)
	assert.False(t, ok)
	assert.ErrorIs(t, table.Reclaim(h), ErrStaleHandle)
}

func TestTableReusesSlotWithNewGeneration(t *testing.T) {
	table := NewTable(1)
	old := newTestConn(t)
	h := table.Insert(old.Connection)
	require.NoError(t, old.SetStatus(Disconnected))
	require.NoError(t, table.Reclaim(h))

	fresh := newTestConn(t)
	h2 := table.Insert(fresh.Connection)

	assert.Equal(t, h.index(), h2.index())
	assert.NotEqual(t, h, h2)
	_, ok := table.Get(h)
	assert.False(t, ok)
	got, ok := table.Get(h2)
	require.True(t, ok)
	assert.Same(t, fresh.Connection, got)
}

func TestTableRange(t *testing.T) {
	table := NewTable(0)
	for i := 0; i < 3; i++ {
		c := newTestConn(t)
		c.SetAppID(i)
		table.Insert(c.Connection)
	}

	var ids []int
	table.Range(func(h Handle, c *Connection) bool {
		ids = append(ids, c.AppID())
		return true
	})
	assert.Equal(t, []int{0, 1, 2}, ids)

	visited := 0
	table.Range(func(Handle, *Connection) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)

	_, ok := table.Get(Handle(1 << 40))
	assert.False(t, ok)
}
