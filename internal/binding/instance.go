package binding

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/value"
)

// Instance is one constructed model. It is not safe for concurrent use.
type Instance struct {
	b         *Binding
	handle    unsafe.Pointer
	destroyed bool
	traces    map[*Trace]struct{}
}

// Binding returns the binding the instance was created from.
func (inst *Instance) Binding() *Binding { return inst.b }

func (inst *Instance) alive(op string) error {
	if inst.destroyed {
		return errors.Lifecycle(inst.b.mod.Name, op+" on a destroyed instance")
	}
	return nil
}

// Destroy releases the native model, closing any open trace first. It must be
// called exactly once; a second call is a lifecycle violation.
func (inst *Instance) Destroy() error {
	if err := inst.alive("destroy"); err != nil {
		return err
	}
	for tr := range inst.traces {
		if err := tr.Close(); err != nil {
			Logger().Warn("failed to close trace", zap.String("module", inst.b.mod.Name), zap.Error(err))
		}
	}
	inst.b.release(inst)
	inst.destroyed = true
	inst.handle = nil
	return nil
}

// Eval settles combinational logic after inputs change.
func (inst *Instance) Eval() error {
	if err := inst.alive("eval"); err != nil {
		return err
	}
	inst.b.ep.eval(inst.handle)
	return nil
}

// Tick runs n full clock cycles (low, eval, high, eval).
func (inst *Instance) Tick(n uint64) error {
	if err := inst.alive("tick"); err != nil {
		return err
	}
	if inst.b.ep.tick == nil {
		return errors.Unsupported(inst.b.mod.Name, "module has no clock port")
	}
	inst.b.ep.tick(inst.handle, n)
	return nil
}

// Reset holds the reset port high for cycles clock cycles, then releases it
// and evaluates once.
func (inst *Instance) Reset(cycles uint64) error {
	if err := inst.alive("reset"); err != nil {
		return err
	}
	mod := inst.b.mod
	if mod.Reset == "" {
		return errors.Unsupported(mod.Name, "module has no reset port")
	}
	rst, ok := mod.Port(mod.Reset)
	if !ok {
		return errors.NoSuchPort(mod.Name, mod.Reset)
	}
	high, err := value.FromUint64(rst.Class(), 1)
	if err != nil {
		return err
	}
	if err := inst.Write(mod.Reset, high); err != nil {
		return err
	}
	if cycles > 0 {
		if err := inst.Tick(cycles); err != nil {
			return err
		}
	} else if err := inst.Eval(); err != nil {
		return err
	}
	if err := inst.Write(mod.Reset, value.Zero(rst.Class())); err != nil {
		return err
	}
	return inst.Eval()
}

// Read returns the current value of a readable port. Wide values own a fresh
// buffer carrying the port's logical width.
func (inst *Instance) Read(name string) (value.Value, error) {
	if err := inst.alive("read"); err != nil {
		return value.Value{}, err
	}
	pa, err := inst.b.port(name)
	if err != nil {
		return value.Value{}, err
	}
	if !pa.port.Direction().Readable() {
		return value.Value{}, inst.directionError(pa, "read")
	}
	var v value.Value
	switch pa.port.Class().Kind() {
	case ports.KindByte:
		v = value.Byte(pa.get8(inst.handle))
	case ports.KindHalf:
		v = value.Half(pa.get16(inst.handle))
	case ports.KindWord:
		v = value.Word(pa.get32(inst.handle))
	case ports.KindQuad:
		v = value.Quad(pa.get64(inst.handle))
	case ports.KindWide:
		words, err := readWide(pa, inst.handle)
		if err != nil {
			return value.Value{}, err
		}
		v = value.WideOwned(words)
	}
	return v.WithWidth(pa.port.Width()), nil
}

// Write drives an input or inout port. The value's storage class must match
// the port's; wide values must carry exactly the port's word count. Bits above
// the port's logical width are cleared before they reach the model.
func (inst *Instance) Write(name string, v value.Value) error {
	if err := inst.alive("write"); err != nil {
		return err
	}
	pa, err := inst.b.port(name)
	if err != nil {
		return err
	}
	if !pa.port.Direction().Writable() {
		return inst.directionError(pa, "write")
	}
	class := pa.port.Class()
	if class.IsWide() && v.IsWide() {
		return writeWide(inst.b.mod.Name, pa, inst.handle, v.Words())
	}
	if v.Class() != class {
		return errors.New(errors.PhaseAccess, errors.KindClassMismatch).
			Module(inst.b.mod.Name).
			Port(name).
			Detail("port holds %s, value is %s", class, v.Class()).
			Build()
	}
	raw, _ := v.Uint64()
	raw = ports.MaskScalar(pa.port.Width(), raw)
	switch class.Kind() {
	case ports.KindByte:
		pa.set8(inst.handle, uint8(raw))
	case ports.KindHalf:
		pa.set16(inst.handle, uint16(raw))
	case ports.KindWord:
		pa.set32(inst.handle, uint32(raw))
	case ports.KindQuad:
		pa.set64(inst.handle, raw)
	}
	return nil
}

func (inst *Instance) directionError(pa *portAccess, op string) error {
	return errors.New(errors.PhaseAccess, errors.KindDirection).
		Module(inst.b.mod.Name).
		Port(pa.port.Name()).
		Detail("cannot %s %s port", op, pa.port.Direction()).
		Build()
}

// OpenTrace starts a VCD dump of this instance into path. The artifact must
// have been built with tracing.
func (inst *Instance) OpenTrace(path string) (*Trace, error) {
	if err := inst.alive("open trace"); err != nil {
		return nil, err
	}
	ep := &inst.b.ep
	if ep.traceOpen == nil {
		return nil, errors.Unsupported(inst.b.mod.Name, "artifact was built without tracing")
	}
	handle := ep.traceOpen(inst.handle, path)
	if handle == nil {
		return nil, errors.New(errors.PhaseAccess, errors.KindUnsupported).
			Module(inst.b.mod.Name).
			Detail("failed to open trace file %s", path).
			Build()
	}
	tr := &Trace{inst: inst, handle: handle, path: path}
	if inst.traces == nil {
		inst.traces = make(map[*Trace]struct{})
	}
	inst.traces[tr] = struct{}{}
	return tr, nil
}

// Trace is an open VCD dump attached to one instance.
type Trace struct {
	inst   *Instance
	handle unsafe.Pointer
	path   string
}

// Path returns the VCD file path.
func (tr *Trace) Path() string { return tr.path }

// Dump records every traced signal at timestamp.
func (tr *Trace) Dump(timestamp uint64) error {
	if tr.handle == nil {
		return errors.Lifecycle(tr.inst.b.mod.Name, fmt.Sprintf("dump on closed trace %s", tr.path))
	}
	tr.inst.b.ep.traceDump(tr.handle, timestamp)
	return nil
}

// Close flushes and closes the VCD file. Closing twice is a no-op.
func (tr *Trace) Close() error {
	if tr.handle == nil {
		return nil
	}
	tr.inst.b.ep.traceClose(tr.handle)
	tr.handle = nil
	delete(tr.inst.traces, tr)
	return nil
}
