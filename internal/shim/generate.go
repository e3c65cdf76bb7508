// Package shim generates the C++ translation unit that exposes a Verilated
// model through a flat extern "C" calling convention.
package shim

import (
	"fmt"
	"strings"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	runtimeembed "hdlbind/runtime"
)

// Version is the generator version. It is returned by the shim's abi_version
// entry point and folded into build fingerprints; bump it whenever the
// generated calling convention changes.
const Version uint32 = 1

// Options controls optional entry points.
type Options struct {
	// Trace emits VCD trace entry points. The translator must be run with --trace.
	Trace bool
}

type emitter struct {
	mod   *ports.Module
	opts  Options
	class string
	buf   strings.Builder
}

// Generate emits the shim for mod. Identical inputs produce byte-identical output.
func Generate(mod *ports.Module, opts Options) ([]byte, error) {
	if mod == nil {
		return nil, errors.New(errors.PhaseGenerate, errors.KindInvalidModule).Detail("missing module").Build()
	}
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	e := &emitter{
		mod:   mod,
		opts:  opts,
		class: ModelClass(mod.Name),
	}
	e.emitPreamble()
	e.buf.WriteString("extern \"C\" {\n\n")
	e.emitLifecycle()
	if mod.HasClock() {
		e.emitTick()
	}
	for _, p := range mod.Ports {
		e.emitPort(p)
	}
	if opts.Trace {
		e.emitTrace()
	}
	e.buf.WriteString("} // extern \"C\"\n")
	return []byte(e.buf.String()), nil
}

func (e *emitter) emitPreamble() {
	fmt.Fprintf(&e.buf, "// Code generated by hdlbind (shim v%d, classifier v%d). DO NOT EDIT.\n", Version, ports.ClassifierVersion)
	fmt.Fprintf(&e.buf, "// module: %s\n\n", e.mod.Name)
	e.buf.WriteString("#include <cstddef>\n#include <cstdint>\n\n")
	e.buf.WriteString("#include \"verilated.h\"\n")
	if e.opts.Trace {
		e.buf.WriteString("#include \"verilated_vcd_c.h\"\n")
	}
	fmt.Fprintf(&e.buf, "#include \"%s\"\n", ModelHeader(e.mod.Name))
	fmt.Fprintf(&e.buf, "#include \"%s\"\n\n", runtimeembed.HeaderName)
}

func (e *emitter) emitLifecycle() {
	fmt.Fprintf(&e.buf, "uint32_t %s(void) { return %du; }\n\n", ABIVersion(e.mod.Name), Version)

	fmt.Fprintf(&e.buf, "void* %s(void) {\n", New(e.mod.Name))
	if e.opts.Trace {
		e.buf.WriteString("    Verilated::traceEverOn(true);\n")
	}
	fmt.Fprintf(&e.buf, "    return new %s;\n}\n\n", e.class)

	fmt.Fprintf(&e.buf, "void %s(void* model) {\n", Delete(e.mod.Name))
	fmt.Fprintf(&e.buf, "    %s* top = static_cast<%s*>(model);\n", e.class, e.class)
	e.buf.WriteString("    top->final();\n    delete top;\n}\n\n")

	fmt.Fprintf(&e.buf, "void %s(void* model) { static_cast<%s*>(model)->eval(); }\n\n", Eval(e.mod.Name), e.class)
}

func (e *emitter) emitTick() {
	clk := e.mod.Clock
	fmt.Fprintf(&e.buf, "void %s(void* model, uint64_t cycles) {\n", Tick(e.mod.Name))
	fmt.Fprintf(&e.buf, "    %s* top = static_cast<%s*>(model);\n", e.class, e.class)
	e.buf.WriteString("    for (uint64_t i = 0; i < cycles; ++i) {\n")
	fmt.Fprintf(&e.buf, "        top->%s = 0;\n        top->eval();\n", clk)
	fmt.Fprintf(&e.buf, "        top->%s = 1;\n        top->eval();\n", clk)
	e.buf.WriteString("    }\n}\n\n")
}

func (e *emitter) emitPort(p ports.Port) {
	top := e.mod.Name
	class := p.Class()
	if class.IsWide() {
		fmt.Fprintf(&e.buf, "void %s(void* model, uint32_t* out, size_t n) {\n", Get(top, p.Name()))
		fmt.Fprintf(&e.buf, "    hdlbind_wide_read(static_cast<%s*>(model)->%s, %d, out, n);\n}\n\n", e.class, p.Name(), class.Words())
		if p.Direction().Writable() {
			fmt.Fprintf(&e.buf, "void %s(void* model, const uint32_t* in, size_t n) {\n", Set(top, p.Name()))
			fmt.Fprintf(&e.buf, "    hdlbind_wide_write(static_cast<%s*>(model)->%s, %d, in, n);\n}\n\n", e.class, p.Name(), class.Words())
		}
		return
	}
	ctype := class.CType()
	fmt.Fprintf(&e.buf, "%s %s(void* model) { return static_cast<%s*>(model)->%s; }\n", ctype, Get(top, p.Name()), e.class, p.Name())
	if p.Direction().Writable() {
		fmt.Fprintf(&e.buf, "void %s(void* model, %s value) { static_cast<%s*>(model)->%s = value; }\n", Set(top, p.Name()), ctype, e.class, p.Name())
	}
	e.buf.WriteString("\n")
}

func (e *emitter) emitTrace() {
	top := e.mod.Name
	fmt.Fprintf(&e.buf, "void* %s(void* model, const char* path) {\n", TraceOpen(top))
	e.buf.WriteString("    VerilatedVcdC* vcd = new VerilatedVcdC;\n")
	fmt.Fprintf(&e.buf, "    static_cast<%s*>(model)->trace(vcd, 99);\n", e.class)
	e.buf.WriteString("    vcd->open(path);\n    return vcd;\n}\n\n")
	fmt.Fprintf(&e.buf, "void %s(void* vcd, uint64_t timestamp) { static_cast<VerilatedVcdC*>(vcd)->dump(timestamp); }\n\n", TraceDump(top))
	fmt.Fprintf(&e.buf, "void %s(void* vcd) {\n", TraceClose(top))
	e.buf.WriteString("    VerilatedVcdC* trace = static_cast<VerilatedVcdC*>(vcd);\n")
	e.buf.WriteString("    trace->close();\n    delete trace;\n}\n\n")
}
