// Package logger builds the zap loggers used across the service and carries
// per-request logging context such as correlation and customer identifiers.
package logger

import (
	"fmt"
	"strings"

	"github.com/clinic/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Options shape a logger built by New. Blank fields take the development
// defaults: info level, console encoding on stdout.
type Options struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeLayout string
}

// OptionsFor maps the log section of the application config. Production
// switches the default encoding to JSON.
func OptionsFor(cfg config.LogConfig, env string) Options {
	o := Options{Level: cfg.Level, Format: cfg.Format, Output: cfg.Output}
	if o.Format == "" && env == "production" {
		o.Format = "json"
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Level == "" {
		o.Level = "info"
	}
	if o.Format == "" {
		o.Format = "console"
	}
	switch {
	case o.Output == "" || strings.EqualFold(o.Output, "stdout"):
		o.Output = "stdout"
	case strings.EqualFold(o.Output, "stderr"):
		o.Output = "stderr"
	}
	if o.TimeLayout == "" {
		o.TimeLayout = defaultTimeLayout
	}
	return o
}

// New builds the logger. An output file that cannot be opened is an error so
// a bad path shows up at startup.
func New(o Options) (*zap.Logger, error) {
	o = o.withDefaults()

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(o.Level))
	zc.Sampling = nil
	zc.Encoding = o.Format
	zc.EncoderConfig = encoderConfig(o)
	zc.OutputPaths = []string{o.Output}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("open log output %q: %w", o.Output, err)
	}
	return log, nil
}

// ParseLevel reads a level name case-insensitively. Unknown names are info.
func ParseLevel(level string) zapcore.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		return zapcore.WarnLevel
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func encoderConfig(o Options) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(o.TimeLayout),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if o.Format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}
