package binding

import (
	"fmt"
	"reflect"
	"unsafe"

	"hdlbind/internal/loader"
	"hdlbind/internal/ports"
	"hdlbind/internal/shim"
)

// fakeModel simulates one model instance in Go. Every port is stored as a
// word slice of its class's word count.
type fakeModel struct {
	vals    map[string][]uint32
	deleted bool
}

func (m *fakeModel) words(name string) []uint32 { return m.vals[name] }

func (m *fakeModel) copyPort(dst, src string) { copy(m.vals[dst], m.vals[src]) }

type fakeTrace struct {
	path   string
	dumps  []uint64
	closed bool
}

// fakeBehavior drives a fakeModel: comb runs on every eval, posedge on every
// rising clock edge before the following eval.
type fakeBehavior struct {
	comb    func(*fakeModel)
	posedge func(*fakeModel)
}

// fakeLibrary implements loader.Library with Go closures in place of the
// generated shim's entry points.
type fakeLibrary struct {
	mod    *ports.Module
	syms   map[string]any
	models map[*fakeModel]struct{}
	traces []*fakeTrace
	closed int
	evals  int
	double int // destroy calls on an already deleted model
}

var _ loader.Library = (*fakeLibrary)(nil)

func toModel(p unsafe.Pointer) *fakeModel { return (*fakeModel)(p) }

func newFakeLibrary(mod *ports.Module, behave fakeBehavior, trace bool) *fakeLibrary {
	l := &fakeLibrary{mod: mod, syms: make(map[string]any), models: make(map[*fakeModel]struct{})}
	top := mod.Name
	eval := func(m *fakeModel) {
		l.evals++
		if behave.comb != nil {
			behave.comb(m)
		}
	}

	l.syms[shim.ABIVersion(top)] = func() uint32 { return shim.Version }
	l.syms[shim.New(top)] = func() unsafe.Pointer {
		m := &fakeModel{vals: make(map[string][]uint32)}
		for _, p := range mod.Ports {
			m.vals[p.Name()] = make([]uint32, p.Class().Words())
		}
		l.models[m] = struct{}{}
		return unsafe.Pointer(m)
	}
	l.syms[shim.Delete(top)] = func(p unsafe.Pointer) {
		m := toModel(p)
		if m.deleted {
			l.double++
		}
		m.deleted = true
		delete(l.models, m)
	}
	l.syms[shim.Eval(top)] = func(p unsafe.Pointer) { eval(toModel(p)) }
	if mod.HasClock() {
		clk := mod.Clock
		l.syms[shim.Tick(top)] = func(p unsafe.Pointer, cycles uint64) {
			m := toModel(p)
			for i := uint64(0); i < cycles; i++ {
				m.vals[clk][0] = 0
				eval(m)
				m.vals[clk][0] = 1
				if behave.posedge != nil {
					behave.posedge(m)
				}
				eval(m)
			}
		}
	}
	if trace {
		l.syms[shim.TraceOpen(top)] = func(_ unsafe.Pointer, path string) unsafe.Pointer {
			tr := &fakeTrace{path: path}
			l.traces = append(l.traces, tr)
			return unsafe.Pointer(tr)
		}
		l.syms[shim.TraceDump(top)] = func(p unsafe.Pointer, ts uint64) {
			tr := (*fakeTrace)(p)
			tr.dumps = append(tr.dumps, ts)
		}
		l.syms[shim.TraceClose(top)] = func(p unsafe.Pointer) { (*fakeTrace)(p).closed = true }
	}

	for _, port := range mod.Ports {
		name := port.Name()
		get, set := shim.Get(top, name), shim.Set(top, name)
		writable := port.Direction().Writable()
		switch port.Class().Kind() {
		case ports.KindByte:
			l.syms[get] = func(p unsafe.Pointer) uint8 { return uint8(toModel(p).words(name)[0]) }
			if writable {
				l.syms[set] = func(p unsafe.Pointer, v uint8) { toModel(p).words(name)[0] = uint32(v) }
			}
		case ports.KindHalf:
			l.syms[get] = func(p unsafe.Pointer) uint16 { return uint16(toModel(p).words(name)[0]) }
			if writable {
				l.syms[set] = func(p unsafe.Pointer, v uint16) { toModel(p).words(name)[0] = uint32(v) }
			}
		case ports.KindWord:
			l.syms[get] = func(p unsafe.Pointer) uint32 { return toModel(p).words(name)[0] }
			if writable {
				l.syms[set] = func(p unsafe.Pointer, v uint32) { toModel(p).words(name)[0] = v }
			}
		case ports.KindQuad:
			l.syms[get] = func(p unsafe.Pointer) uint64 {
				w := toModel(p).words(name)
				return uint64(w[0]) | uint64(w[1])<<32
			}
			if writable {
				l.syms[set] = func(p unsafe.Pointer, v uint64) {
					w := toModel(p).words(name)
					w[0], w[1] = uint32(v), uint32(v>>32)
				}
			}
		case ports.KindWide:
			// copy at most n words, as the native helper does
			l.syms[get] = func(p unsafe.Pointer, out *uint32, n uintptr) {
				copy(unsafe.Slice(out, n), toModel(p).words(name))
			}
			if writable {
				l.syms[set] = func(p unsafe.Pointer, in *uint32, n uintptr) {
					copy(toModel(p).words(name), unsafe.Slice(in, n))
				}
			}
		}
	}
	return l
}

func (l *fakeLibrary) Path() string { return "fake://" + l.mod.Name }

func (l *fakeLibrary) Bind(fptr any, symbol string) error {
	fn, ok := l.syms[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, loader.ErrSymbolNotFound)
	}
	dst := reflect.ValueOf(fptr).Elem()
	src := reflect.ValueOf(fn)
	if dst.Type() != src.Type() {
		return fmt.Errorf("%s: signature %s does not match %s", symbol, src.Type(), dst.Type())
	}
	dst.Set(src)
	return nil
}

func (l *fakeLibrary) Close() error {
	l.closed++
	return nil
}
