package binding

import (
	"unsafe"

	"hdlbind/internal/errors"
	"hdlbind/internal/loader"
	"hdlbind/internal/ports"
	"hdlbind/internal/shim"
)

// entryPoints is the resolved function table of one artifact.
type entryPoints struct {
	abiVersion func() uint32
	construct  func() unsafe.Pointer
	destroy    func(unsafe.Pointer)
	eval       func(unsafe.Pointer)
	tick       func(unsafe.Pointer, uint64) // nil without a clock port

	traceOpen  func(unsafe.Pointer, string) unsafe.Pointer // nil without tracing
	traceDump  func(unsafe.Pointer, uint64)
	traceClose func(unsafe.Pointer)
}

// portAccess holds the accessor pair for one port; only the fields matching
// the port's class are set, and setters only for writable ports.
type portAccess struct {
	port ports.Port

	get8  func(unsafe.Pointer) uint8
	set8  func(unsafe.Pointer, uint8)
	get16 func(unsafe.Pointer) uint16
	set16 func(unsafe.Pointer, uint16)
	get32 func(unsafe.Pointer) uint32
	set32 func(unsafe.Pointer, uint32)
	get64 func(unsafe.Pointer) uint64
	set64 func(unsafe.Pointer, uint64)

	getWide func(unsafe.Pointer, *uint32, uintptr)
	setWide func(unsafe.Pointer, *uint32, uintptr)
}

type resolver struct {
	lib    loader.Library
	module string
	err    error
}

func (r *resolver) bind(fptr any, symbol string) {
	if r.err != nil {
		return
	}
	if err := r.lib.Bind(fptr, symbol); err != nil {
		r.err = errors.Symbol(r.module, symbol, err)
	}
}

func resolveEntryPoints(lib loader.Library, mod *ports.Module, opts Options) (entryPoints, []*portAccess, error) {
	var ep entryPoints
	r := &resolver{lib: lib, module: mod.Name}
	top := mod.Name

	r.bind(&ep.abiVersion, shim.ABIVersion(top))
	if r.err != nil {
		return ep, nil, r.err
	}
	if got := ep.abiVersion(); got != shim.Version {
		return ep, nil, errors.New(errors.PhaseLoad, errors.KindSymbol).
			Module(top).
			Detail("artifact was generated with shim ABI v%d, this binding expects v%d; rebuild the model", got, shim.Version).
			Build()
	}

	r.bind(&ep.construct, shim.New(top))
	r.bind(&ep.destroy, shim.Delete(top))
	r.bind(&ep.eval, shim.Eval(top))
	if mod.HasClock() {
		r.bind(&ep.tick, shim.Tick(top))
	}
	if opts.Trace {
		r.bind(&ep.traceOpen, shim.TraceOpen(top))
		r.bind(&ep.traceDump, shim.TraceDump(top))
		r.bind(&ep.traceClose, shim.TraceClose(top))
	}

	table := make([]*portAccess, 0, len(mod.Ports))
	for _, p := range mod.Ports {
		pa := &portAccess{port: p}
		get, set := shim.Get(top, p.Name()), shim.Set(top, p.Name())
		writable := p.Direction().Writable()
		switch p.Class().Kind() {
		case ports.KindByte:
			r.bind(&pa.get8, get)
			if writable {
				r.bind(&pa.set8, set)
			}
		case ports.KindHalf:
			r.bind(&pa.get16, get)
			if writable {
				r.bind(&pa.set16, set)
			}
		case ports.KindWord:
			r.bind(&pa.get32, get)
			if writable {
				r.bind(&pa.set32, set)
			}
		case ports.KindQuad:
			r.bind(&pa.get64, get)
			if writable {
				r.bind(&pa.set64, set)
			}
		case ports.KindWide:
			r.bind(&pa.getWide, get)
			if writable {
				r.bind(&pa.setWide, set)
			}
		}
		table = append(table, pa)
	}
	if r.err != nil {
		return ep, nil, r.err
	}
	return ep, table, nil
}
