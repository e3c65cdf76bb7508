//go:build darwin || freebsd || linux

package loader

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

type dynamicLibrary struct {
	path string

	mu     sync.Mutex
	handle uintptr
}

func open(path string) (*dynamicLibrary, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &dynamicLibrary{path: path, handle: handle}, nil
}

func (l *dynamicLibrary) Path() string { return l.path }

func (l *dynamicLibrary) Bind(fptr any, symbol string) (err error) {
	l.mu.Lock()
	handle := l.handle
	l.mu.Unlock()
	if handle == 0 {
		return fmt.Errorf("bind %s: library %s is closed", symbol, l.path)
	}
	sym, err := purego.Dlsym(handle, symbol)
	if err != nil || sym == 0 {
		return notFound(symbol, err)
	}
	// RegisterFunc panics on signatures it cannot call
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind %s: %v", symbol, r)
		}
	}()
	purego.RegisterFunc(fptr, sym)
	return nil
}

func (l *dynamicLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == 0 {
		return nil
	}
	if err := purego.Dlclose(l.handle); err != nil {
		return fmt.Errorf("failed to unload %s: %w", l.path, err)
	}
	l.handle = 0
	Logger().Debug("library unloaded", zap.String("path", l.path))
	return nil
}
