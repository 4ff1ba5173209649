package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported output encodings.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type options struct {
	level  zapcore.Level
	format string
}

// Option customises the logger built by New.
type Option func(*options) error

// WithLevel sets the minimum enabled level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(o *options) error {
		if strings.TrimSpace(level) == "" {
			return nil
		}
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		o.level = parsed
		return nil
	}
}

// WithFormat selects json or console encoding.
func WithFormat(format string) Option {
	return func(o *options) error {
		switch f := strings.ToLower(strings.TrimSpace(format)); f {
		case "":
			return nil
		case FormatJSON, FormatConsole:
			o.format = f
			return nil
		default:
			return fmt.Errorf("unsupported log format %q", format)
		}
	}
}

// New creates a structured logger. The default is JSON at info level, written
// to stderr so command output on stdout stays machine readable.
func New(opts ...Option) (*zap.Logger, error) {
	o := options{level: zapcore.InfoLevel, format: FormatJSON}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(o.level)
	cfg.Encoding = o.format
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = false
	if o.format == FormatConsole {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Validate reports whether level and format would be accepted by New.
func Validate(level, format string) error {
	var o options
	for _, opt := range []Option{WithLevel(level), WithFormat(format)} {
		if err := opt(&o); err != nil {
			return err
		}
	}
	return nil
}
