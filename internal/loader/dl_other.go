//go:build !(darwin || freebsd || linux)

package loader

import (
	"fmt"
	"runtime"
)

type dynamicLibrary struct{}

func open(string) (*dynamicLibrary, error) {
	return nil, fmt.Errorf("dynamic model loading is not supported on %s", runtime.GOOS)
}

func (*dynamicLibrary) Path() string          { return "" }
func (*dynamicLibrary) Bind(any, string) error { return fmt.Errorf("unsupported") }
func (*dynamicLibrary) Close() error           { return nil }
