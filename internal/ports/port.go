package ports

import (
	"fmt"
	"strings"
	"unicode"

	"hdlbind/internal/errors"
)

// Direction is the signal direction of a port as seen from the module.
type Direction uint8

const (
	Input Direction = iota + 1
	Output
	Inout
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case Inout:
		return "inout"
	default:
		return "unknown"
	}
}

// Readable reports whether the host may read the port.
func (d Direction) Readable() bool { return d == Input || d == Output || d == Inout }

// Writable reports whether the host may drive the port.
func (d Direction) Writable() bool { return d == Input || d == Inout }

// ParseDirection accepts "input", "output" and "inout" (and their short forms).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in":
		return Input, nil
	case "output", "out":
		return Output, nil
	case "inout":
		return Inout, nil
	default:
		return 0, fmt.Errorf("invalid port direction %q (expected input|output|inout)", s)
	}
}

// Port describes one port of a module. Ports are immutable once created.
type Port struct {
	name  string
	dir   Direction
	msb   int
	lsb   int
	class Class
}

// NewPort validates the bit range and classifies the port.
func NewPort(name string, dir Direction, msb, lsb int) (Port, error) {
	if !IsIdent(name) {
		return Port{}, errors.New(errors.PhaseClassify, errors.KindInvalidModule).
			Port(name).
			Detail("port name must be a plain identifier; escaped names are not supported").
			Build()
	}
	if dir < Input || dir > Inout {
		return Port{}, errors.New(errors.PhaseClassify, errors.KindInvalidModule).
			Port(name).
			Detail("invalid direction %d", dir).
			Build()
	}
	class, err := Classify(msb, lsb)
	if err != nil {
		return Port{}, errors.PortWidth(name, msb, lsb)
	}
	return Port{name: name, dir: dir, msb: msb, lsb: lsb, class: class}, nil
}

// MustPort is NewPort for statically known ports; it panics on error.
func MustPort(name string, dir Direction, msb, lsb int) Port {
	p, err := NewPort(name, dir, msb, lsb)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Port) Name() string         { return p.name }
func (p Port) Direction() Direction { return p.dir }
func (p Port) MSB() int             { return p.msb }
func (p Port) LSB() int             { return p.lsb }
func (p Port) Class() Class         { return p.class }

// Width is msb-lsb+1.
func (p Port) Width() int { return p.msb - p.lsb + 1 }

func (p Port) String() string {
	return fmt.Sprintf("%s[%d:%d] %s (%s)", p.dir, p.msb, p.lsb, p.name, p.class)
}

// IsIdent reports whether name is a plain C identifier.
func IsIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r > unicode.MaxASCII {
			return false
		}
		if i == 0 && r != '_' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
