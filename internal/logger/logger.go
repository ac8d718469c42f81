// Package logger builds the zap logger used across the service.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFilename = "allocation-api.log"

// Options controls where and how the logger writes.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output string // stdout or file
	Path   string // directory used when Output is file

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writer zapcore.WriteSyncer
	switch opts.Output {
	case "", "stdout":
		writer = zapcore.AddSync(os.Stdout)
	case "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("log path is required when output is 'file'")
		}
		writer = fileWriter(opts)
	default:
		return nil, fmt.Errorf("unknown log output %q", opts.Output)
	}

	core := zapcore.NewCore(encoder(opts.Format), writer, level)
	return zap.New(core, zap.AddCaller()), nil
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileWriter(opts Options) zapcore.WriteSyncer {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 10
	}
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(opts.Path, logFilename),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	})
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
