//go:build linux
// +build linux

package socket

import (
	"net"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Address is the textual IP and host-order port of a socket endpoint.
// It is a plain value and may be copied freely.
type Address struct {
	ip   string
	port uint16
}

// NewAddress returns an Address for the given textual ip and port.
func NewAddress(ip string, port uint16) Address {
	return Address{ip: ip, port: port}
}

// AddressFromRaw decodes a raw IPv4 socket address as filled in by the kernel.
// The input is not validated, it is expected to come from a successful
// accept/getsockname/getpeername call.
func AddressFromRaw(raw *unix.RawSockaddrInet4) Address {
	p := (*[2]byte)(unsafe.Pointer(&raw.Port))
	return Address{
		ip:   net.IPv4(raw.Addr[0], raw.Addr[1], raw.Addr[2], raw.Addr[3]).String(),
		port: uint16(p[0])<<8 | uint16(p[1]),
	}
}

// AddressFromSockaddr converts an IPv4 or IPv6 socket address. The boolean
// is false for any other address family.
func AddressFromSockaddr(sa unix.Sockaddr) (Address, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{ip: net.IP(sa.Addr[:]).String(), port: uint16(sa.Port)}, true
	case *unix.SockaddrInet6:
		return Address{ip: net.IP(sa.Addr[:]).String(), port: uint16(sa.Port)}, true
	}
	return Address{}, false
}

func (a Address) IP() string {
	return a.ip
}

func (a Address) Port() uint16 {
	return a.port
}

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool {
	return a.ip == "" && a.port == 0
}

// String returns "ip:port", bracketing IPv6 hosts.
func (a Address) String() string {
	return net.JoinHostPort(a.ip, strconv.Itoa(int(a.port)))
}

// TCPAddr returns the address as a *net.TCPAddr, or nil if it is not set.
func (a Address) TCPAddr() *net.TCPAddr {
	if a.IsZero() {
		return nil
	}
	return &net.TCPAddr{IP: net.ParseIP(a.ip), Port: int(a.port)}
}
