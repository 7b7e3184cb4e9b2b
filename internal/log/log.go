// Package log provides the process-wide zap logger used by every flora component.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = zap.NewNop()
var log = base.Sugar()

// Init replaces the no-op default logger. debug selects the development
// encoder and debug level.
func Init(debug bool) error {
	var (
		z   *zap.Logger
		err error
	)
	if debug {
		z, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		z, err = cfg.Build(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	base = z
	log = z.Sugar()
	return nil
}

// Set installs an existing logger, mostly for tests (zaptest/observer).
func Set(z *zap.Logger) {
	if z == nil {
		z = zap.NewNop()
	}
	base = z.WithOptions(zap.AddCallerSkip(1))
	log = base.Sugar()
}

// Zap returns the underlying logger.
func Zap() *zap.Logger { return base }

// Sync flushes buffered entries.
func Sync() {
	_ = log.Sync()
}

func Debugf(template string, args ...any) { log.Debugf(template, args...) }
func Debugw(msg string, kv ...any)        { log.Debugw(msg, kv...) }
func Infof(template string, args ...any)  { log.Infof(template, args...) }
func Infow(msg string, kv ...any)         { log.Infow(msg, kv...) }
func Warnf(template string, args ...any)  { log.Warnf(template, args...) }
func Warnw(msg string, kv ...any)         { log.Warnw(msg, kv...) }
func Errorf(template string, args ...any) { log.Errorf(template, args...) }
func Errorw(msg string, kv ...any)        { log.Errorw(msg, kv...) }

func Fatalf(template string, args ...any) {
	log.Fatalf(template, args...)
	os.Exit(1)
}
