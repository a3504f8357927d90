//go:build linux
// +build linux

package epollnet

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Event is a set of epoll readiness conditions. It is used both as the interest
// set a connection registers and as the readiness reported back by the loop.
type Event uint32

const (
	EventNone          Event = 0
	EventReadable      Event = unix.EPOLLIN
	EventPriority      Event = unix.EPOLLPRI
	EventWritable      Event = unix.EPOLLOUT
	EventError         Event = unix.EPOLLERR
	EventHangup        Event = unix.EPOLLHUP
	EventPeerHangup    Event = unix.EPOLLRDHUP
	EventEdgeTriggered Event = 1 << 31
)

// readInterest is the interest set of a connected socket.
const readInterest = EventReadable | EventEdgeTriggered | EventPriority

var eventNames = []struct {
	ev   Event
	name string
}{
	{EventReadable, "IN"},
	{EventPriority, "PRI"},
	{EventWritable, "OUT"},
	{EventError, "ERR"},
	{EventHangup, "HUP"},
	{EventPeerHangup, "RDHUP"},
	{EventEdgeTriggered, "ET"},
}

func (ev Event) Has(bits Event) bool {
	return ev&bits != 0
}

func (ev Event) String() string {
	if ev == EventNone {
		return "NONE"
	}
	var names []string
	for _, n := range eventNames {
		if ev&n.ev != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Status is the lifecycle state of a connection.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Registration is the state of a descriptor in the epoll instance.
type Registration uint8

const (
	Unregistered Registration = iota
	Registered
	Removed
)

func (r Registration) String() string {
	switch r {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Removed:
		return "removed"
	}
	return "unknown"
}

type ctlOp uint8

const (
	opNone ctlOp = iota
	opAdd
	opMod
	opDel
)

func (op ctlOp) String() string {
	switch op {
	case opAdd:
		return "ADD"
	case opMod:
		return "MOD"
	case opDel:
		return "DEL"
	}
	return "NONE"
}

// next returns the epoll_ctl operation that brings the kernel in line with
// interest, and the registration state after it.
//
// An empty interest set is the only way out of Registered, and leaving
// Removed always goes through ADD.
func (r Registration) next(interest Event) (ctlOp, Registration) {
	if interest == EventNone {
		if r == Registered {
			return opDel, Removed
		}
		return opNone, Removed
	}
	if r == Registered {
		return opMod, Registered
	}
	return opAdd, Registered
}
