package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Dir     string // log directory, created if missing
	Level   string // "debug", "info", "warn", "error"
	Console bool   // tee to stdout as well
}

// NewLogger builds a JSON file logger with size-based rotation.
func NewLogger(opts Options) (*zap.Logger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if err := level.Set(opts.Level); err != nil {
		level = zap.InfoLevel
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "pingit.log"),
		MaxSize:    10, // MB
		MaxBackups: 10,
		MaxAge:     7, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, level)
	if opts.Console {
		core = zapcore.NewTee(core,
			zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stdout), level))
	}
	return zap.New(core), nil
}
