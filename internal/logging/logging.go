// Package logging builds the pipeline's zap logger: JSON lines appended to
// a log file plus a console stream on stderr.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFile is the log file path used when none is configured.
const DefaultFile = "etl_pipeline.log"

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	// File receives JSON entries. Empty disables the file sink.
	File string
	// Format of the console stream: "console" or "json".
	Format  string
	Verbose bool
	// Quiet drops the console stream; the file still gets everything.
	Quiet bool
	// Console defaults to os.Stderr.
	Console io.Writer
}

// New returns the logger and a close func that flushes and releases the
// log file.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	var file *os.File

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, errors.Wrap(err, "create log directory")
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		file = f
		// The file sink always records debug entries.
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.AddSync(f),
			zapcore.DebugLevel,
		))
	}

	if !opts.Quiet {
		w := opts.Console
		if w == nil {
			w = os.Stderr
		}
		enc, err := consoleEncoder(opts.Format)
		if err != nil {
			if file != nil {
				_ = file.Close()
			}
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level))
	}

	if len(cores) == 0 {
		return zap.NewNop().Sugar(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		// Sync on stderr returns EINVAL on some platforms.
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger.Sugar(), closeFn, nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func consoleEncoder(format string) (zapcore.Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.CallerKey = ""
		return zapcore.NewConsoleEncoder(cfg), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(fileEncoderConfig()), nil
	default:
		return nil, errors.Newf("unknown log format %q (expected console or json)", format)
	}
}
