// Package loader opens compiled model libraries and resolves their entry points.
package loader

import (
	stderrors "errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"hdlbind/internal/errors"
)

// ErrSymbolNotFound is wrapped by Bind when the library lacks a symbol.
var ErrSymbolNotFound = stderrors.New("symbol not found")

// Library is an opened shared library.
type Library interface {
	// Path is the file the library was opened from.
	Path() string
	// Bind resolves symbol and stores a Go function calling it in fptr,
	// which must be a pointer to a func variable.
	Bind(fptr any, symbol string) error
	// Close unloads the library. Functions bound from it must not be called afterwards.
	Close() error
}

// Open loads the shared library at path.
func Open(path string) (Library, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Detail("artifact %s is missing or unreadable", path).
			Cause(err).
			Build()
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Detail("artifact %s is not a regular file", path).
			Build()
	}
	lib, err := open(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Detail("failed to load %s", path).
			Cause(err).
			Build()
	}
	Logger().Debug("library loaded", zap.String("path", path))
	return lib, nil
}

func notFound(symbol string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	return fmt.Errorf("%s: %w: %w", symbol, ErrSymbolNotFound, cause)
}
