// Copyright (c) 2022 Rocky Yang
// Copyright (c) 2020 Andy Pan
// Copyright (c) 2017 Max Riveiro
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socket

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

var errUnsupportedTCPProtocol = errors.New("only tcp/tcp4/tcp6 are supported")

func getTCPSockaddr(proto NetAddressType, addr string) (sa unix.Sockaddr, family int, err error) {
	var tcpAddr *net.TCPAddr
	if tcpAddr, err = net.ResolveTCPAddr(string(proto), addr); err != nil {
		return
	}

	switch proto {
	case Tcp, Tcp4:
		if ip4 := tcpAddr.IP.To4(); ip4 != nil || len(tcpAddr.IP) == 0 {
			sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
			copy(sa4.Addr[:], ip4)
			return sa4, unix.AF_INET, nil
		}
		if proto == Tcp4 {
			return nil, 0, errUnsupportedTCPProtocol
		}
		fallthrough
	case Tcp6:
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		return sa6, unix.AF_INET6, nil
	default:
		return nil, 0, errUnsupportedTCPProtocol
	}
}

// tcpSocket creates an endpoint for communication and returns a non-blocking,
// close-on-exec file descriptor that refers to that endpoint.
func tcpSocket(proto NetAddressType, addr string, passive bool, sockOpts ...Option) (fd int, err error) {
	var (
		family int
		sa     unix.Sockaddr
	)

	if sa, family, err = getTCPSockaddr(proto, addr); err != nil {
		return
	}

	if fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP); err != nil {
		err = os.NewSyscallError("socket", err)
		return
	}
	defer func() {
		// ignore EINPROGRESS for non-blocking socket connect, should be processed by caller
		if err != nil {
			if err, ok := err.(*os.SyscallError); ok && err.Err == unix.EINPROGRESS {
				return
			}
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	if err = ApplyOptions(fd, sockOpts...); err != nil {
		return
	}

	if passive {
		if err = os.NewSyscallError("bind", unix.Bind(fd, sa)); err != nil {
			return
		}
		err = os.NewSyscallError("listen", unix.Listen(fd, unix.SOMAXCONN))
	} else {
		err = os.NewSyscallError("connect", unix.Connect(fd, sa))
	}

	return
}

// Accept takes one pending connection off a listening socket. The returned
// descriptor is non-blocking and close-on-exec; unix.EAGAIN means the
// backlog is empty.
func Accept(listenFd int) (int, unix.Sockaddr, error) {
	for {
		fd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, nil, err
		}
		return fd, sa, nil
	}
}
