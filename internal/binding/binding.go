// Package binding exposes a loaded model library as Go call surfaces.
//
// A Binding owns the library handle and the entry-point table resolved from
// it. Instances are created from a Binding and must all be destroyed before
// the Binding is closed. A Binding may be shared between goroutines; an
// Instance may not.
package binding

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hdlbind/internal/errors"
	"hdlbind/internal/loader"
	"hdlbind/internal/ports"
)

// Options describes how the artifact was built.
type Options struct {
	// Trace requires the VCD trace entry points.
	Trace bool
}

// Binding is a loaded model library with its resolved entry points.
type Binding struct {
	lib   loader.Library
	mod   *ports.Module
	opts  Options
	ep    entryPoints
	ports []*portAccess
	index map[string]*portAccess

	mu     sync.Mutex
	live   map[*Instance]struct{}
	closed bool
}

// Load resolves every entry point of mod from lib. The binding takes
// ownership of lib; on error lib is closed.
func Load(lib loader.Library, mod *ports.Module, opts Options) (*Binding, error) {
	if lib == nil {
		return nil, fmt.Errorf("missing library")
	}
	if mod == nil {
		_ = lib.Close()
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidModule).Detail("missing module").Build()
	}
	if err := mod.Validate(); err != nil {
		_ = lib.Close()
		return nil, err
	}
	ep, table, err := resolveEntryPoints(lib, mod, opts)
	if err != nil {
		if closeErr := lib.Close(); closeErr != nil {
			Logger().Warn("failed to unload library after bind error", zap.Error(closeErr))
		}
		return nil, err
	}
	b := &Binding{
		lib:   lib,
		mod:   mod,
		opts:  opts,
		ep:    ep,
		ports: table,
		index: make(map[string]*portAccess, len(table)),
		live:  make(map[*Instance]struct{}),
	}
	for _, pa := range table {
		b.index[pa.port.Name()] = pa
	}
	Logger().Debug("model bound",
		zap.String("module", mod.Name),
		zap.String("library", lib.Path()),
		zap.Int("ports", len(table)))
	return b, nil
}

// Module returns the module description the binding was resolved for.
func (b *Binding) Module() *ports.Module { return b.mod }

// Ports returns the bound ports in declaration order.
func (b *Binding) Ports() []ports.Port {
	out := make([]ports.Port, len(b.ports))
	for i, pa := range b.ports {
		out[i] = pa.port
	}
	return out
}

// Live returns the number of instances not yet destroyed.
func (b *Binding) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// New constructs a model instance.
func (b *Binding) New() (*Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Lifecycle(b.mod.Name, "binding is closed")
	}
	handle := b.ep.construct()
	if handle == nil {
		return nil, errors.New(errors.PhaseLifetime, errors.KindLoad).
			Module(b.mod.Name).
			Detail("model constructor returned null").
			Build()
	}
	inst := &Instance{b: b, handle: handle}
	b.live[inst] = struct{}{}
	return inst, nil
}

// Close unloads the library. It fails, leaving the library loaded, while any
// instance is still alive. Closing twice is a no-op.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if n := len(b.live); n > 0 {
		return errors.Lifecycle(b.mod.Name, fmt.Sprintf("binding closed with %d live instance(s); destroy them first", n))
	}
	if err := b.lib.Close(); err != nil {
		return errors.New(errors.PhaseLifetime, errors.KindLoad).
			Module(b.mod.Name).
			Detail("failed to unload library").
			Cause(err).
			Build()
	}
	b.closed = true
	Logger().Debug("model unbound", zap.String("module", b.mod.Name))
	return nil
}

func (b *Binding) port(name string) (*portAccess, error) {
	pa, ok := b.index[name]
	if !ok {
		return nil, errors.NoSuchPort(b.mod.Name, name)
	}
	return pa, nil
}

// release removes inst from the live set and destroys the native object.
func (b *Binding) release(inst *Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ep.destroy(inst.handle)
	delete(b.live, inst)
}
