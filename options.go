package epollnet

import "github.com/panjf2000/gnet/v2/pkg/logging"

const (
	// DefaultRecvBufferCap is the receive buffer capacity used when none is configured.
	DefaultRecvBufferCap = 64 * 1024

	// DefaultSendBufferCap is the send backlog capacity used when none is configured.
	DefaultSendBufferCap = 64 * 1024
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		RecvBufferCap: DefaultRecvBufferCap,
		SendBufferCap: DefaultSendBufferCap,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.RecvBufferCap == 0 {
		opts.RecvBufferCap = DefaultRecvBufferCap
	}
	if opts.SendBufferCap == 0 {
		opts.SendBufferCap = DefaultSendBufferCap
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetDefaultLogger()
	}
	return opts
}

// Options are configurations for a connection.
type Options struct {
	// RecvBufferCap is the fixed capacity of the receive buffer, allocated when
	// the connection becomes Connected.
	RecvBufferCap int

	// SendBufferCap is the fixed capacity of the send backlog, allocated the first
	// time a write would block. It is also the largest payload Send accepts: a
	// longer one fails with ErrBufferOverflow without being written, even on an
	// idle socket.
	SendBufferCap int

	// Logger is the customized logger for logging info, if it is not set,
	// then gnet's default logger is used.
	Logger logging.Logger
}

// WithOptions sets up all options. Zero capacities and a nil logger fall back
// to the defaults.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithRecvBufferCap sets up RecvBufferCap for reading bytes.
func WithRecvBufferCap(recvBufferCap int) Option {
	return func(opts *Options) {
		opts.RecvBufferCap = recvBufferCap
	}
}

// WithSendBufferCap sets up SendBufferCap for pending bytes.
func WithSendBufferCap(sendBufferCap int) Option {
	return func(opts *Options) {
		opts.SendBufferCap = sendBufferCap
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
