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

//go:build linux
// +build linux

// Package socket provides the address descriptor of a connection and the
// helpers that create non-blocking TCP sockets and apply socket options to
// them for the accept/connect path.
package socket

import (
	"strings"
	"time"
)

type NetAddressType string

const (
	Tcp  NetAddressType = "tcp"
	Tcp4 NetAddressType = "tcp4"
	Tcp6 NetAddressType = "tcp6"
)

// Option is used for setting an option on socket.
type Option struct {
	SetSockOpt func(int, int) error
	Opt        int
}

// TCPSocket creates a non-blocking TCP socket. A passive socket is bound and
// listening on addr; an active one has started connecting to addr and the
// caller learns the outcome through a writable event.
func TCPSocket(proto NetAddressType, addr string, passive bool, sockOpts ...Option) (int, error) {
	return tcpSocket(proto, addr, passive, sockOpts...)
}

// TCPSocketOpt is the type of TCP socket options.
type TCPSocketOpt int

// Available TCP socket options.
const (
	TCPNoDelay TCPSocketOpt = iota
	TCPDelay
)

// SocketOptions are configurations applied to a socket right after it is created or accepted.
type SocketOptions struct {
	// ReuseAddr indicates whether to set up the SO_REUSEADDR socket option.
	ReuseAddr bool `yaml:"reuse_addr"`

	// ReusePort indicates whether to set up the SO_REUSEPORT socket option.
	ReusePort bool `yaml:"reuse_port"`

	// TCPKeepAlive sets up a duration for (SO_KEEPALIVE) socket option.
	TCPKeepAlive time.Duration `yaml:"tcp_keep_alive"`

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	//
	// The default is true (no delay), meaning that data is sent
	// as soon as possible after a write operation.
	TCPNoDelay TCPSocketOpt `yaml:"tcp_no_delay"`

	// SocketRecvBuffer sets the maximum socket receive buffer in bytes.
	SocketRecvBuffer int `yaml:"socket_recv_buffer"`

	// SocketSendBuffer sets the maximum socket send buffer in bytes.
	SocketSendBuffer int `yaml:"socket_send_buffer"`
}

func SetOptions(network NetAddressType, options SocketOptions) []Option {
	var sockOpts []Option
	if options.ReusePort {
		sockOpt := Option{SetSockOpt: SetReuseport, Opt: 1}
		sockOpts = append(sockOpts, sockOpt)
	}
	if options.ReuseAddr {
		sockOpt := Option{SetSockOpt: SetReuseAddr, Opt: 1}
		sockOpts = append(sockOpts, sockOpt)
	}
	if options.TCPNoDelay == TCPNoDelay && strings.HasPrefix(string(network), "tcp") {
		sockOpt := Option{SetSockOpt: SetNoDelay, Opt: 1}
		sockOpts = append(sockOpts, sockOpt)
	}
	if options.TCPKeepAlive > 0 {
		sockOpt := Option{SetSockOpt: SetKeepAlivePeriod, Opt: int(options.TCPKeepAlive / time.Second)}
		sockOpts = append(sockOpts, sockOpt)
	}
	if options.SocketRecvBuffer > 0 {
		sockOpt := Option{SetSockOpt: SetRecvBuffer, Opt: options.SocketRecvBuffer}
		sockOpts = append(sockOpts, sockOpt)
	}
	if options.SocketSendBuffer > 0 {
		sockOpt := Option{SetSockOpt: SetSendBuffer, Opt: options.SocketSendBuffer}
		sockOpts = append(sockOpts, sockOpt)
	}
	return sockOpts
}

// ApplyOptions sets every option on fd, stopping at the first failure.
func ApplyOptions(fd int, sockOpts ...Option) error {
	for _, opt := range sockOpts {
		if err := opt.SetSockOpt(fd, opt.Opt); err != nil {
			return err
		}
	}
	return nil
}
