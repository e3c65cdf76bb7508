// Package hdlbind builds Verilator models of HDL modules on demand, caches the
// resulting shared libraries and drives them from Go.
//
//	rt, err := hdlbind.New(hdlbind.Options{})
//	mod, err := hdlbind.NewModule("adder", "rtl/adder.sv", []hdlbind.Port{
//		hdlbind.MustPort("a", hdlbind.Input, 7, 0),
//		hdlbind.MustPort("b", hdlbind.Input, 7, 0),
//		hdlbind.MustPort("sum", hdlbind.Output, 8, 0),
//	})
//	inst, err := rt.CreateModel(ctx, mod)
//	defer inst.Destroy()
package hdlbind

import (
	"go.uber.org/zap"

	"hdlbind/internal/binding"
	"hdlbind/internal/buildpipeline"
	"hdlbind/internal/config"
	"hdlbind/internal/driver"
	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/value"
)

type (
	Runtime = driver.Runtime
	Options = driver.Options

	Module       = ports.Module
	ModuleOption = ports.ModuleOption
	Port         = ports.Port
	Direction    = ports.Direction
	Class        = ports.Class

	Value    = value.Value
	Binding  = binding.Binding
	Instance = binding.Instance
	Trace    = binding.Trace

	Scalar[T binding.Unsigned] = binding.Scalar[T]
	WideHandle                 = binding.WideHandle

	BuildResult = buildpipeline.Result
	BuildEvent  = buildpipeline.Event
	Config      = config.Config
	Error       = errors.Error
)

const (
	Input  = ports.Input
	Output = ports.Output
	Inout  = ports.Inout
)

var (
	ErrBuild         = errors.ErrBuild
	ErrSymbol        = errors.ErrSymbol
	ErrLifecycle     = errors.ErrLifecycle
	ErrValueShape    = errors.ErrValueShape
	ErrClassMismatch = errors.ErrClassMismatch
	ErrDirection     = errors.ErrDirection
	ErrNoSuchPort    = errors.ErrNoSuchPort
	ErrUnsupported   = errors.ErrUnsupported
	ErrPortWidth     = errors.ErrPortWidth
	ErrConfig        = errors.ErrConfig
	ErrLoad          = errors.ErrLoad
	ErrInvalidModule = errors.ErrInvalidModule
	ErrSourceMissing = errors.ErrSourceMissing
)

// Storage classes.
var (
	ClassByte = ports.Byte
	ClassHalf = ports.Half
	ClassWord = ports.Word
	ClassQuad = ports.Quad
)

// ClassWide returns the class of a port spanning n 32-bit words.
func ClassWide(n int) Class { return ports.Wide(n) }

func Byte(v uint8) Value  { return value.Byte(v) }
func Half(v uint16) Value { return value.Half(v) }
func Word(v uint32) Value { return value.Word(v) }
func Quad(v uint64) Value { return value.Quad(v) }
func Zero(c Class) Value  { return value.Zero(c) }

// WideRef borrows words for a write; WideOwned takes ownership of them.
func WideRef(words []uint32) Value   { return value.WideRef(words) }
func WideOwned(words []uint32) Value { return value.WideOwned(words) }

// FromUint64 builds a value of class c, failing if v does not fit.
func FromUint64(c Class, v uint64) (Value, error) { return value.FromUint64(c, v) }

// New opens the build cache and returns a Runtime.
func New(opts Options) (*Runtime, error) { return driver.New(opts) }

// NewFromConfig returns a Runtime configured by a loaded hdlbind.toml.
func NewFromConfig(cfg *Config) (*Runtime, error) { return driver.New(driver.OptionsFromConfig(cfg)) }

// LoadConfig parses an hdlbind.toml manifest.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func NewModule(name, sourcePath string, p []Port, opts ...ModuleOption) (*Module, error) {
	return ports.NewModule(name, sourcePath, p, opts...)
}

func WithClock(name string) ModuleOption { return ports.WithClock(name) }
func WithReset(name string) ModuleOption { return ports.WithReset(name) }

func NewPort(name string, dir Direction, msb, lsb int) (Port, error) {
	return ports.NewPort(name, dir, msb, lsb)
}

// MustPort is NewPort that panics on an invalid declaration.
func MustPort(name string, dir Direction, msb, lsb int) Port { return ports.MustPort(name, dir, msb, lsb) }

// ScalarPort returns a typed accessor for a port of at most 64 bits. T must
// match the port's storage class exactly.
func ScalarPort[T binding.Unsigned](inst *Instance, name string) (Scalar[T], error) {
	return binding.ScalarPort[T](inst, name)
}

// WidePort returns an accessor for a port wider than 64 bits.
func WidePort(inst *Instance, name string) (WideHandle, error) { return binding.WidePort(inst, name) }

// SetLogger routes diagnostics of every subsystem to l.
func SetLogger(l *zap.Logger) { driver.SetLogger(l) }
