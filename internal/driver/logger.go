package driver

import (
	"sync"

	"go.uber.org/zap"

	"hdlbind/internal/binding"
	"hdlbind/internal/buildpipeline"
	"hdlbind/internal/cache"
	"hdlbind/internal/loader"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the driver's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger installs l in the driver and every package it drives, each under
// its own name.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	logger = l.Named("runtime")
	loggerMu.Unlock()

	cache.SetLogger(l.Named("cache"))
	buildpipeline.SetLogger(l.Named("build"))
	loader.SetLogger(l.Named("loader"))
	binding.SetLogger(l.Named("binding"))
}
