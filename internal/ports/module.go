package ports

import (
	"slices"

	"hdlbind/internal/errors"
)

// Module describes a top-level HDL module: its name, the file defining it and
// its ordered port list.
type Module struct {
	Name       string
	SourcePath string
	Ports      []Port
	Clock      string
	Reset      string

	index map[string]int
}

// ModuleOption configures optional parts of a Module.
type ModuleOption func(*Module)

// WithClock designates the clock port.
func WithClock(name string) ModuleOption {
	return func(m *Module) { m.Clock = name }
}

// WithReset designates the reset port.
func WithReset(name string) ModuleOption {
	return func(m *Module) { m.Reset = name }
}

// NewModule validates and indexes a module description.
func NewModule(name, sourcePath string, ports []Port, opts ...ModuleOption) (*Module, error) {
	m := &Module{
		Name:       name,
		SourcePath: sourcePath,
		Ports:      slices.Clone(ports),
	}
	for _, opt := range opts {
		opt(m)
	}
	index, err := m.validate()
	if err != nil {
		return nil, err
	}
	m.index = index
	return m, nil
}

// Validate checks names, uniqueness and the clock/reset designation. It does
// not modify m, so a validated Module may be shared between goroutines.
func (m *Module) Validate() error {
	_, err := m.validate()
	return err
}

func (m *Module) validate() (map[string]int, error) {
	invalid := func(port, format string, args ...any) error {
		return errors.New(errors.PhaseClassify, errors.KindInvalidModule).
			Module(m.Name).
			Port(port).
			Detail(format, args...).
			Build()
	}
	if !IsIdent(m.Name) {
		return nil, invalid("", "module name must be a plain identifier; escaped names are not supported")
	}
	if m.SourcePath == "" {
		return nil, invalid("", "missing source path")
	}
	index := make(map[string]int, len(m.Ports))
	for i, p := range m.Ports {
		if !p.class.IsValid() {
			return nil, invalid(p.name, "port was not created with NewPort")
		}
		if _, dup := index[p.name]; dup {
			return nil, invalid(p.name, "duplicate port name")
		}
		index[p.name] = i
	}
	for _, designated := range []struct{ role, name string }{{"clock", m.Clock}, {"reset", m.Reset}} {
		if designated.name == "" {
			continue
		}
		i, ok := index[designated.name]
		if !ok {
			return nil, invalid(designated.name, "%s port is not declared", designated.role)
		}
		p := m.Ports[i]
		if !p.dir.Writable() || p.Width() != 1 {
			return nil, invalid(designated.name, "%s port must be a 1-bit input", designated.role)
		}
	}
	return index, nil
}

// Port looks up a port by name. Modules assembled without NewModule fall
// back to a linear scan.
func (m *Module) Port(name string) (Port, bool) {
	if i, ok := m.index[name]; ok && i < len(m.Ports) && m.Ports[i].name == name {
		return m.Ports[i], true
	}
	for _, p := range m.Ports {
		if p.name == name {
			return p, true
		}
	}
	return Port{}, false
}

// HasClock reports whether a clock port is designated.
func (m *Module) HasClock() bool { return m.Clock != "" }
