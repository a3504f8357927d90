package epollnet

import (
	"os"

	"github.com/panjf2000/gnet/v2/pkg/logging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig describes where and how verbosely connections log.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level"`

	// File is the path of a rotating log file. Empty means stderr.
	File string `yaml:"file"`

	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`

	// MaxAge is the number of days rotated files are kept.
	MaxAge int `yaml:"max_age"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// NewLogger builds a zap-backed logging.Logger from cfg, the returned flush
// function syncs buffered entries and must be called before exiting.
func NewLogger(cfg LogConfig) (logging.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
	}

	var ws zapcore.WriteSyncer
	if cfg.File != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		ws = zapcore.Lock(os.Stderr)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), ws, zap.NewAtomicLevelAt(level))
	zl := zap.New(core, zap.AddCaller())
	return zl.Sugar(), zl.Sync, nil
}
