// Package value provides a type-erased port value tagged with its storage class.
package value

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
)

// Value holds one port value. Scalars are stored inline; wide values hold a
// word slice, least significant word first. The zero Value is invalid.
type Value struct {
	class  ports.Class
	scalar uint64
	words  []uint32
	owned  bool
	width  int // logical width in bits, 0 when unknown
}

// Byte returns a value of class Byte.
func Byte(v uint8) Value { return Value{class: ports.Byte, scalar: uint64(v)} }

// Half returns a value of class Half.
func Half(v uint16) Value { return Value{class: ports.Half, scalar: uint64(v)} }

// Word returns a value of class Word.
func Word(v uint32) Value { return Value{class: ports.Word, scalar: uint64(v)} }

// Quad returns a value of class Quad.
func Quad(v uint64) Value { return Value{class: ports.Quad, scalar: v} }

// WideRef wraps caller-owned words for a write. The slice is not copied and
// must not change until the write returns.
func WideRef(words []uint32) Value {
	return Value{class: ports.Wide(len(words)), words: words}
}

// WideOwned takes ownership of words, typically a buffer filled by a read.
func WideOwned(words []uint32) Value {
	return Value{class: ports.Wide(len(words)), words: words, owned: true}
}

// FromUint64 builds a value of class c from v. Wide classes get v in their low
// two words; scalar classes reject values that do not fit their container.
func FromUint64(c ports.Class, v uint64) (Value, error) {
	if !c.IsValid() {
		return Value{}, errors.New(errors.PhaseAccess, errors.KindClassMismatch).
			Detail("invalid storage class").
			Build()
	}
	switch c.Kind() {
	case ports.KindByte, ports.KindHalf, ports.KindWord:
		if bits := c.Bits(); v>>bits != 0 {
			return Value{}, errors.New(errors.PhaseAccess, errors.KindValueShape).
				Detail("%d does not fit in %s (%d bits)", v, c, bits).
				Build()
		}
		return Value{class: c, scalar: v}, nil
	case ports.KindQuad:
		return Quad(v), nil
	case ports.KindWide:
		words := make([]uint32, c.Words())
		words[0] = uint32(v)
		if len(words) > 1 {
			words[1] = uint32(v >> 32)
		}
		return WideOwned(words), nil
	}
	return Value{}, errors.New(errors.PhaseAccess, errors.KindClassMismatch).
		Detail("invalid storage class %s", c).
		Build()
}

// Zero returns the all-zero value of class c.
func Zero(c ports.Class) Value {
	v, err := FromUint64(c, 0)
	if err != nil {
		return Value{}
	}
	return v
}

// Class returns the storage class tag.
func (v Value) Class() ports.Class { return v.class }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.class.IsValid() }

// IsWide reports whether v holds a word sequence.
func (v Value) IsWide() bool { return v.class.IsWide() }

// Owned reports whether a wide value owns its words.
func (v Value) Owned() bool { return v.owned }

// Uint8 returns the payload of a Byte value.
func (v Value) Uint8() (uint8, bool) {
	if v.class != ports.Byte {
		return 0, false
	}
	return uint8(v.scalar), true
}

// Uint16 returns the payload of a Half value.
func (v Value) Uint16() (uint16, bool) {
	if v.class != ports.Half {
		return 0, false
	}
	return uint16(v.scalar), true
}

// Uint32 returns the payload of a Word value.
func (v Value) Uint32() (uint32, bool) {
	if v.class != ports.Word {
		return 0, false
	}
	return uint32(v.scalar), true
}

// Uint64 returns the payload of any scalar value, widened.
func (v Value) Uint64() (uint64, bool) {
	if !v.class.IsValid() || v.class.IsWide() {
		return 0, false
	}
	return v.scalar, true
}

// Words returns the word sequence of a wide value, or nil for scalars.
// The slice is shared with v.
func (v Value) Words() []uint32 {
	if !v.class.IsWide() {
		return nil
	}
	return v.words
}

// Width is the logical width in bits, or 0 when unknown.
func (v Value) Width() int { return v.width }

// WithWidth records the logical width, used to mask don't-care bits.
func (v Value) WithWidth(width int) Value {
	v.width = width
	return v
}

// Clone returns a value that owns a copy of its words.
func (v Value) Clone() Value {
	if v.class.IsWide() {
		v.words = slices.Clone(v.words)
		v.owned = true
	}
	return v
}

// Equal compares two values of the same storage class. Bits above the logical
// width are ignored when a width is known on either side. Values of different
// classes are never equal.
func (v Value) Equal(o Value) bool {
	if !v.class.IsValid() || v.class != o.class {
		return false
	}
	width := v.width
	if width == 0 || (o.width != 0 && o.width < width) {
		width = o.width
	}
	if !v.class.IsWide() {
		return ports.MaskScalar(width, v.scalar) == ports.MaskScalar(width, o.scalar)
	}
	if len(v.words) != len(o.words) {
		return false
	}
	if width == 0 {
		return slices.Equal(v.words, o.words)
	}
	a := ports.MaskTail(width, slices.Clone(v.words))
	b := ports.MaskTail(width, slices.Clone(o.words))
	return slices.Equal(a, b)
}

// String renders scalars in decimal and wide values as hex, most significant
// word first.
func (v Value) String() string {
	if !v.class.IsValid() {
		return "<invalid>"
	}
	if !v.class.IsWide() {
		return strconv.FormatUint(v.scalar, 10)
	}
	words := v.words
	if v.width > 0 {
		words = ports.MaskTail(v.width, slices.Clone(words))
	}
	var b strings.Builder
	b.WriteString("0x")
	for i := len(words) - 1; i >= 0; i-- {
		if i == len(words)-1 {
			b.WriteString(strconv.FormatUint(uint64(words[i]), 16))
			continue
		}
		fmt.Fprintf(&b, "%08x", words[i])
	}
	return b.String()
}
