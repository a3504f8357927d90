//go:build linux
// +build linux

package socket

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestAddressFromRaw(t *testing.T) {
	raw := &unix.RawSockaddrInet4{Family: unix.AF_INET, Addr: [4]byte{192, 168, 1, 20}}
	p := (*[2]byte)(unsafe.Pointer(&raw.Port))
	p[0], p[1] = 0x1f, 0x90

	addr := AddressFromRaw(raw)
	assert.Equal(t, "192.168.1.20", addr.IP())
	assert.Equal(t, uint16(8080), addr.Port())
	assert.Equal(t, "192.168.1.20:8080", addr.String())
}

func TestAddressFromSockaddr(t *testing.T) {
	addr, ok := AddressFromSockaddr(&unix.SockaddrInet4{Port: 443, Addr: [4]byte{10, 0, 0, 1}})
	assert.True(t, ok)
	assert.Equal(t, NewAddress("10.0.0.1", 443), addr)

	v6 := &unix.SockaddrInet6{Port: 53}
	v6.Addr[15] = 1
	addr, ok = AddressFromSockaddr(v6)
	assert.True(t, ok)
	assert.Equal(t, "::1", addr.IP())
	assert.Equal(t, "[::1]:53", addr.String())

	addr, ok = AddressFromSockaddr(&unix.SockaddrUnix{Name: "/tmp/sock"})
	assert.False(t, ok)
	assert.True(t, addr.IsZero())
	assert.Nil(t, addr.TCPAddr())
}

func TestAddressTCPAddr(t *testing.T) {
	tcpAddr := NewAddress("127.0.0.1", 9000).TCPAddr()
	if assert.NotNil(t, tcpAddr) {
		assert.Equal(t, "127.0.0.1:9000", tcpAddr.String())
	}
}
