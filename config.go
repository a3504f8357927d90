//go:build linux
// +build linux

package epollnet

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	socket "github.com/y001j/epollnet/sockets"
)

// Config is the file form of the connection and socket settings of a server.
//
//	recv_buffer_cap: 65536
//	send_buffer_cap: 65536
//	log:
//	  level: warn
//	  file: /var/log/server.log
//	socket:
//	  tcp_keep_alive: 30s
//	  reuse_port: true
type Config struct {
	RecvBufferCap int                  `yaml:"recv_buffer_cap"`
	SendBufferCap int                  `yaml:"send_buffer_cap"`
	Log           LogConfig            `yaml:"log"`
	Socket        socket.SocketOptions `yaml:"socket"`
}

// LoadConfig decodes a YAML config from r. Unknown keys are rejected and
// unset buffer capacities take their defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	if cfg.RecvBufferCap == 0 {
		cfg.RecvBufferCap = DefaultRecvBufferCap
	}
	if cfg.SendBufferCap == 0 {
		cfg.SendBufferCap = DefaultSendBufferCap
	}
	if cfg.RecvBufferCap < 0 || cfg.RecvBufferCap > MaxBufferCap {
		return nil, errors.Errorf("recv_buffer_cap %d out of range", cfg.RecvBufferCap)
	}
	if cfg.SendBufferCap < 0 || cfg.SendBufferCap > MaxBufferCap {
		return nil, errors.Errorf("send_buffer_cap %d out of range", cfg.SendBufferCap)
	}
	return cfg, nil
}

// LoadConfigFile reads the config at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()
	return LoadConfig(f)
}

// Options returns the connection options described by the config and the
// flush function of the logger it built.
func (cfg *Config) Options() ([]Option, func() error, error) {
	logger, flush, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return []Option{
		WithRecvBufferCap(cfg.RecvBufferCap),
		WithSendBufferCap(cfg.SendBufferCap),
		WithLogger(logger),
	}, flush, nil
}

// SocketOptions returns the options to apply to accepted or dialed sockets.
func (cfg *Config) SocketOptions() []socket.Option {
	return socket.SetOptions(socket.Tcp, cfg.Socket)
}
