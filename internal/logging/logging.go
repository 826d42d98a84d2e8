// Package logging builds the logr loggers used throughout the registrar.
//
// Components pull their logger from the context with FromContext; the
// command installs the process logger with SetDefault and NewContext.
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V.
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

var (
	mu            sync.RWMutex
	defaultLogger = logr.Discard()
)

// ParseLevel maps "info", "debug" and "trace" to logr verbosity.
func ParseLevel(level string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "trace":
		return TRACE, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger returns a zap backed logr.Logger. Development loggers write
// human readable console output; production loggers write JSON.
func NewLogger(level string, development bool) (logr.Logger, error) {
	v, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	// zapr maps V(n) to zap level -n
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-v))

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger installs a development logger at debug verbosity as the default.
func NewTestLogger() logr.Logger {
	l, err := NewLogger("debug", true)
	if err != nil {
		l = logr.Discard()
	}
	SetDefault(l)
	return l
}

func SetDefault(l logr.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func Default() logr.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) logr.Logger {
	if l, err := logr.FromContext(ctx); err == nil {
		return l
	}
	return Default()
}

func NewContext(ctx context.Context, l logr.Logger) context.Context {
	return logr.NewContext(ctx, l)
}
