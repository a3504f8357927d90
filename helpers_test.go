//go:build linux
// +build linux

package epollnet

import (
	"bytes"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

type ctlCall struct {
	op string
	fd int
	ev Event
}

type fakePoller struct {
	mu    sync.Mutex
	calls []ctlCall
	err   error
}

func (p *fakePoller) Add(fd int, ev Event) error { return p.record("ADD", fd, ev) }
func (p *fakePoller) Mod(fd int, ev Event) error { return p.record("MOD", fd, ev) }
func (p *fakePoller) Del(fd int) error           { return p.record("DEL", fd, EventNone) }

func (p *fakePoller) record(op string, fd int, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, ctlCall{op: op, fd: fd, ev: ev})
	return p.err
}

func (p *fakePoller) Calls() []ctlCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ctlCall(nil), p.calls...)
}

type readResult struct {
	data []byte
	err  error
}

// fakeSocket accepts at most limit bytes (negative: unlimited) before
// reporting EAGAIN, so tests decide how much of each write the kernel takes.
type fakeSocket struct {
	mu          sync.Mutex
	wire        bytes.Buffer
	limit       int
	interrupts  int
	writeErr    error
	writeCalls  int
	reads       []readResult
	closeCalls  int
	sockname    unix.Sockaddr
	socknameErr error
	soErr       error
	noDelay     bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		limit:    -1,
		sockname: &unix.SockaddrInet4{Port: 8080, Addr: [4]byte{127, 0, 0, 1}},
	}
}

func (s *fakeSocket) setLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

func (s *fakeSocket) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.wire.Bytes()...)
}

func (s *fakeSocket) write(fd int, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if s.interrupts > 0 {
		s.interrupts--
		return -1, unix.EINTR
	}
	if s.writeErr != nil {
		return -1, s.writeErr
	}
	if s.limit == 0 {
		return -1, unix.EAGAIN
	}
	n := len(p)
	if s.limit > 0 {
		if n > s.limit {
			n = s.limit
		}
		s.limit -= n
	}
	s.wire.Write(p[:n])
	return n, nil
}

func (s *fakeSocket) read(fd int, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) == 0 {
		return -1, unix.EAGAIN
	}
	r := s.reads[0]
	if r.err != nil {
		s.reads = s.reads[1:]
		return -1, r.err
	}
	n := copy(p, r.data)
	if n < len(r.data) {
		s.reads[0].data = r.data[n:]
	} else {
		s.reads = s.reads[1:]
	}
	return n, nil
}

func (s *fakeSocket) close(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *fakeSocket) getsockname(fd int) (unix.Sockaddr, error) {
	return s.sockname, s.socknameErr
}

func (s *fakeSocket) socketError(fd int) error {
	return s.soErr
}

func (s *fakeSocket) setNoDelay(fd int, noDelay bool) error {
	s.noDelay = noDelay
	return nil
}

type testConn struct {
	*Connection
	poller *fakePoller
	sock   *fakeSocket
	logs   *observer.ObservedLogs
}

func newTestConn(t *testing.T, options ...Option) *testConn {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	poller := &fakePoller{}
	sock := newFakeSocket()
	options = append([]Option{
		WithRecvBufferCap(1024),
		WithSendBufferCap(1024),
		WithLogger(zap.New(core).Sugar()),
	}, options...)
	c := NewConnection(poller, 7, options...)
	c.sys = sock
	return &testConn{Connection: c, poller: poller, sock: sock, logs: logs}
}

func payload(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i%251)
	}
	return p
}
