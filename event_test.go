//go:build linux
// +build linux

package epollnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationNext(t *testing.T) {
	tests := []struct {
		from     Registration
		interest Event
		op       ctlOp
		to       Registration
	}{
		{Unregistered, EventNone, opNone, Removed},
		{Unregistered, readInterest, opAdd, Registered},
		{Unregistered, EventWritable, opAdd, Registered},
		{Registered, readInterest | EventWritable, opMod, Registered},
		{Registered, EventNone, opDel, Removed},
		{Removed, EventNone, opNone, Removed},
		{Removed, EventWritable, opAdd, Registered},
	}
	for _, tt := range tests {
		op, to := tt.from.next(tt.interest)
		assert.Equal(t, tt.op, op, "%s with %s", tt.from, tt.interest)
		assert.Equal(t, tt.to, to, "%s with %s", tt.from, tt.interest)
	}
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "NONE", EventNone.String())
	assert.Equal(t, "IN|PRI|ET", readInterest.String())
	assert.Equal(t, "IN|PRI|OUT|ET", (readInterest | EventWritable).String())
	assert.True(t, readInterest.Has(EventEdgeTriggered))
	assert.False(t, readInterest.Has(EventWritable))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", Status(9).String())
}
