// Package logging builds the zap loggers used by the board manager and CLI.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"boardcode-go/services/config"
)

// NewConfig returns the zap config for cfg. Stacktraces are off and times
// are ISO8601.
func NewConfig(cfg config.LoggingConfig) (zap.Config, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, errors.Wrapf(err, "logging level %q", cfg.Level)
	}
	encoding := cfg.Format
	if encoding == "" {
		encoding = "console"
	}
	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	encodeLevel := zapcore.CapitalLevelEncoder
	if encoding == "console" && (output == "stderr" || output == "stdout") {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// New builds a named SugaredLogger from cfg.
func New(cfg config.LoggingConfig, name string) (*zap.SugaredLogger, error) {
	zc, err := NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger.Sugar().Named(name), nil
}
