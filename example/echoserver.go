//go:build linux
// +build linux

package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/panjf2000/gnet/v2/pkg/logging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/y001j/epollnet"
)

type echoServer struct {
	BuiltinEventEngine

	logger logging.Logger
}

// OnTraffic sends back everything received. A send that overflows the backlog
// leaves the bytes in the receive buffer until the peer catches up.
func (es *echoServer) OnTraffic(c *epollnet.Connection) Action {
	buf := c.RecvBuffer()
	if err := c.Send(buf.Bytes()); err != nil {
		if errors.Is(err, epollnet.ErrBufferOverflow) {
			return None
		}
		return Close
	}
	buf.Discard(buf.Len())
	return None
}

func (es *echoServer) OnClose(c *epollnet.Connection, err error) {
	if err != nil {
		es.logger.Infof("connection %s closed: %v", c.PeerAddr(), err)
	}
}

// usage: echoserver <addr> [config.yaml]
func main() {
	addr := os.Args[1]

	cfg, err := epollnet.LoadConfig(strings.NewReader(""))
	if len(os.Args) > 2 {
		cfg, err = epollnet.LoadConfigFile(os.Args[2])
	}
	if err != nil {
		panic(err)
	}
	logger, flush, err := epollnet.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer flush()
	connOpts := []epollnet.Option{
		epollnet.WithRecvBufferCap(cfg.RecvBufferCap),
		epollnet.WithSendBufferCap(cfg.SendBufferCap),
		epollnet.WithLogger(logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := &echoServer{logger: logger}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < runtime.NumCPU(); i++ {
		lp, err := newLoop(i, addr, cfg, connOpts, logger, handler)
		if err != nil {
			logger.Errorf("loop(%d) start error(%v)", i, err)
			stop()
			break
		}
		g.Go(func() error {
			return lp.run(ctx)
		})
	}
	if err = g.Wait(); err != nil {
		logger.Errorf("echo server stopped: %v", err)
	}
}
