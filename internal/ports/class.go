// Package ports describes module interfaces and classifies port widths into
// the native storage classes Verilator uses for them.
package ports

import (
	"fmt"

	"hdlbind/internal/errors"
)

// WordBits is the size of one element of a wide value (Verilator's EData).
const WordBits = 32

// ClassifierVersion changes whenever the width thresholds or the layout of
// wide values change. It is folded into build fingerprints.
const ClassifierVersion = 1

// Kind is the storage class tag.
type Kind uint8

const (
	KindByte Kind = iota + 1 // CData, 1-8 bits
	KindHalf                 // SData, 9-16 bits
	KindWord                 // IData, 17-32 bits
	KindQuad                 // QData, 33-64 bits
	KindWide                 // VlWide, >64 bits
)

// Class is a storage class. Wide classes carry their word count; two classes
// are equal only if both kind and word count match.
type Class struct {
	kind  Kind
	words int
}

var (
	Byte = Class{kind: KindByte, words: 1}
	Half = Class{kind: KindHalf, words: 1}
	Word = Class{kind: KindWord, words: 1}
	Quad = Class{kind: KindQuad, words: 2}
)

// Wide returns the class of a wide port spanning n 32-bit words.
func Wide(n int) Class {
	return Class{kind: KindWide, words: n}
}

// Classify maps the bit range [msb:lsb] to its storage class.
func Classify(msb, lsb int) (Class, error) {
	if lsb < 0 || msb < lsb {
		return Class{}, errors.PortWidth("", msb, lsb)
	}
	return ClassOfWidth(msb - lsb + 1), nil
}

// ClassOfWidth maps a positive bit width to its storage class.
func ClassOfWidth(width int) Class {
	switch {
	case width <= 8:
		return Byte
	case width <= 16:
		return Half
	case width <= 32:
		return Word
	case width <= 64:
		return Quad
	default:
		return Wide(WordCount(width))
	}
}

// WordCount is ceil(width/32).
func WordCount(width int) int {
	return (width + WordBits - 1) / WordBits
}

// Kind returns the storage class tag.
func (c Class) Kind() Kind { return c.kind }

// IsWide reports whether values of this class cross the boundary as word arrays.
func (c Class) IsWide() bool { return c.kind == KindWide }

// IsValid reports whether c was produced by the classifier.
func (c Class) IsValid() bool { return c.kind >= KindByte && c.kind <= KindWide && c.words > 0 }

// Words returns the number of 32-bit words needed to hold a value of this class.
func (c Class) Words() int { return c.words }

// Bits returns the size of the native container in bits.
func (c Class) Bits() int {
	switch c.kind {
	case KindByte:
		return 8
	case KindHalf:
		return 16
	case KindWord:
		return 32
	case KindQuad:
		return 64
	case KindWide:
		return c.words * WordBits
	default:
		return 0
	}
}

// CType returns the C type used for scalar values in the shim, or the element
// type for wide values.
func (c Class) CType() string {
	switch c.kind {
	case KindByte:
		return "uint8_t"
	case KindHalf:
		return "uint16_t"
	case KindWord, KindWide:
		return "uint32_t"
	case KindQuad:
		return "uint64_t"
	default:
		return ""
	}
}

func (c Class) String() string {
	switch c.kind {
	case KindByte:
		return "Byte"
	case KindHalf:
		return "Half"
	case KindWord:
		return "Word"
	case KindQuad:
		return "Quad"
	case KindWide:
		return fmt.Sprintf("Wide(%d)", c.words)
	default:
		return "invalid"
	}
}

// MaskTail clears the don't-care bits above width in the final word of a wide
// value. words is modified in place and returned.
func MaskTail(width int, words []uint32) []uint32 {
	if width <= 0 || len(words) == 0 {
		return words
	}
	full := width / WordBits
	rem := width % WordBits
	for i := range words {
		switch {
		case i < full:
		case i == full && rem != 0:
			words[i] &= (1 << rem) - 1
		default:
			words[i] = 0
		}
	}
	return words
}

// MaskScalar clears the don't-care bits above width in a scalar value.
func MaskScalar(width int, v uint64) uint64 {
	if width <= 0 || width >= 64 {
		return v
	}
	return v & (1<<width - 1)
}
