package binding

import (
	"math"
	"unsafe"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
)

// Unsigned lists the Go types matching the scalar storage classes.
type Unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

// Scalar is a typed handle to one scalar port. Accesses call the resolved
// entry point directly, without dispatching on the storage class.
type Scalar[T Unsigned] struct {
	inst *Instance
	name string
	mask T // bits inside the port's logical width
	get  func(unsafe.Pointer) T
	set  func(unsafe.Pointer, T) // nil for outputs
}

func classOf[T Unsigned]() ports.Class {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return ports.Byte
	case uint16:
		return ports.Half
	case uint32:
		return ports.Word
	default:
		return ports.Quad
	}
}

// ScalarPort returns a typed handle for name. T must match the port's storage
// class exactly: uint8 for Byte, uint16 for Half, uint32 for Word, uint64 for Quad.
func ScalarPort[T Unsigned](inst *Instance, name string) (Scalar[T], error) {
	if err := inst.alive("bind port"); err != nil {
		return Scalar[T]{}, err
	}
	pa, err := inst.b.port(name)
	if err != nil {
		return Scalar[T]{}, err
	}
	if want := classOf[T](); pa.port.Class() != want {
		return Scalar[T]{}, errors.New(errors.PhaseAccess, errors.KindClassMismatch).
			Module(inst.b.mod.Name).
			Port(name).
			Detail("port holds %s, handle is %s", pa.port.Class(), want).
			Build()
	}
	h := Scalar[T]{inst: inst, name: name, mask: T(ports.MaskScalar(pa.port.Width(), math.MaxUint64))}
	switch pa.port.Class().Kind() {
	case ports.KindByte:
		h.get, _ = any(pa.get8).(func(unsafe.Pointer) T)
		if pa.set8 != nil {
			h.set, _ = any(pa.set8).(func(unsafe.Pointer, T))
		}
	case ports.KindHalf:
		h.get, _ = any(pa.get16).(func(unsafe.Pointer) T)
		if pa.set16 != nil {
			h.set, _ = any(pa.set16).(func(unsafe.Pointer, T))
		}
	case ports.KindWord:
		h.get, _ = any(pa.get32).(func(unsafe.Pointer) T)
		if pa.set32 != nil {
			h.set, _ = any(pa.set32).(func(unsafe.Pointer, T))
		}
	case ports.KindQuad:
		h.get, _ = any(pa.get64).(func(unsafe.Pointer) T)
		if pa.set64 != nil {
			h.set, _ = any(pa.set64).(func(unsafe.Pointer, T))
		}
	}
	return h, nil
}

// Name returns the port name.
func (h Scalar[T]) Name() string { return h.name }

// Get reads the port.
func (h Scalar[T]) Get() (T, error) {
	if err := h.inst.alive("read"); err != nil {
		return 0, err
	}
	return h.get(h.inst.handle), nil
}

// Set drives the port. Bits above the port's width are cleared.
func (h Scalar[T]) Set(v T) error {
	if err := h.inst.alive("write"); err != nil {
		return err
	}
	if h.set == nil {
		return errors.New(errors.PhaseAccess, errors.KindDirection).
			Module(h.inst.b.mod.Name).
			Port(h.name).
			Detail("cannot write output port").
			Build()
	}
	h.set(h.inst.handle, v&h.mask)
	return nil
}

// WideHandle is a typed handle to one wide port.
type WideHandle struct {
	inst *Instance
	pa   *portAccess
}

// WidePort returns a handle for the wide port name.
func WidePort(inst *Instance, name string) (WideHandle, error) {
	if err := inst.alive("bind port"); err != nil {
		return WideHandle{}, err
	}
	pa, err := inst.b.port(name)
	if err != nil {
		return WideHandle{}, err
	}
	if !pa.port.Class().IsWide() {
		return WideHandle{}, errors.New(errors.PhaseAccess, errors.KindClassMismatch).
			Module(inst.b.mod.Name).
			Port(name).
			Detail("port holds %s, handle is wide", pa.port.Class()).
			Build()
	}
	return WideHandle{inst: inst, pa: pa}, nil
}

// Words returns the port's word count.
func (h WideHandle) Words() int { return h.pa.port.Class().Words() }

// Width returns the port's logical width in bits.
func (h WideHandle) Width() int { return h.pa.port.Width() }

// Get reads the port into a fresh buffer.
func (h WideHandle) Get() ([]uint32, error) {
	if err := h.inst.alive("read"); err != nil {
		return nil, err
	}
	return readWide(h.pa, h.inst.handle)
}

// GetInto reads the port into buf, which must hold exactly Words() words.
func (h WideHandle) GetInto(buf []uint32) error {
	if err := h.inst.alive("read"); err != nil {
		return err
	}
	if err := checkWideShape(h.inst.b.mod.Name, h.pa, len(buf)); err != nil {
		return err
	}
	return readWideInto(h.pa, h.inst.handle, buf)
}

// Set drives the port; words must hold exactly Words() words.
func (h WideHandle) Set(words []uint32) error {
	if err := h.inst.alive("write"); err != nil {
		return err
	}
	if h.pa.setWide == nil {
		return errors.New(errors.PhaseAccess, errors.KindDirection).
			Module(h.inst.b.mod.Name).
			Port(h.pa.port.Name()).
			Detail("cannot write output port").
			Build()
	}
	return writeWide(h.inst.b.mod.Name, h.pa, h.inst.handle, words)
}
