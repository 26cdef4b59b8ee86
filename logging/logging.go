// Package logging builds the process logger.
package logging

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 28
)

// Config selects the level and an optional rotating log file.
type Config struct {
	Level      string `json:"level,omitempty"` // example: "debug"
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if _, err := config.level(); err != nil {
		return errors.Wrap(err, path)
	}
	if config.MaxSizeMB < 0 || config.MaxBackups < 0 || config.MaxAgeDays < 0 {
		return errors.Errorf("%s: rotation limits must not be negative", path)
	}
	return nil
}

func (config *Config) level() (zapcore.Level, error) {
	if config.Level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(config.Level)
}

// NewLoggerConfig returns a new default logger config.
func NewLoggerConfig() zap.Config {
	// from https://github.com/uber-go/zap/blob/2314926ec34c23ee21f3dd4399438469668f8097/config.go#L135
	// but disable stacktraces, use same keys as prod, and color levels.
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	enc := NewLoggerConfig().EncoderConfig
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return enc
}

// NewLogger returns a logger named name that writes to stdout and, when cfg.File is set, to a
// rotating JSON file. debug forces the debug level. The returned func flushes and closes the file.
func NewLogger(name string, cfg Config, debug bool) (golog.Logger, func() error, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = zapcore.DebugLevel
	}

	zc := NewLoggerConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	base, err := zc.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "building logger")
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   true,
		}
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), zapcore.AddSync(rotator), zc.Level)
		base = base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	closeAll := func() error {
		// syncing a terminal stdout fails on some platforms
		utils.UncheckedError(base.Sync())
		if rotator == nil {
			return nil
		}
		return rotator.Close()
	}
	return base.Sugar().Named(name), closeAll, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
