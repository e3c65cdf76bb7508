package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where the error occurred
type Phase string

const (
	PhaseClassify Phase = "classify" // port width classification
	PhaseConfig   Phase = "config"   // workspace manifest
	PhaseGenerate Phase = "generate" // shim generation
	PhaseBuild    Phase = "build"    // fingerprinting and toolchain
	PhaseLoad     Phase = "load"     // dlopen and symbol resolution
	PhaseAccess   Phase = "access"   // port reads and writes
	PhaseLifetime Phase = "lifetime" // instance and binding teardown
)

// Kind categorizes the error
type Kind string

const (
	KindPortWidth     Kind = "port_width"
	KindBuild         Kind = "build"
	KindLoad          Kind = "load"
	KindSymbol        Kind = "symbol"
	KindValueShape    Kind = "value_shape"
	KindLifecycle     Kind = "lifecycle"
	KindNoSuchPort    Kind = "no_such_port"
	KindDirection     Kind = "direction"
	KindClassMismatch Kind = "class_mismatch"
	KindUnsupported   Kind = "unsupported"
	KindInvalidModule Kind = "invalid_module"
	KindSourceMissing Kind = "source_missing"
	KindConfig        Kind = "config"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrPortWidth     = &Error{Kind: KindPortWidth}
	ErrBuild         = &Error{Kind: KindBuild}
	ErrLoad          = &Error{Kind: KindLoad}
	ErrSymbol        = &Error{Kind: KindSymbol}
	ErrValueShape    = &Error{Kind: KindValueShape}
	ErrLifecycle     = &Error{Kind: KindLifecycle}
	ErrNoSuchPort    = &Error{Kind: KindNoSuchPort}
	ErrDirection     = &Error{Kind: KindDirection}
	ErrClassMismatch = &Error{Kind: KindClassMismatch}
	ErrUnsupported   = &Error{Kind: KindUnsupported}
	ErrInvalidModule = &Error{Kind: KindInvalidModule}
	ErrSourceMissing = &Error{Kind: KindSourceMissing}
	ErrConfig        = &Error{Kind: KindConfig}
)

// Error is the structured error type used throughout the engine
type Error struct {
	Cause       error
	Phase       Phase
	Kind        Kind
	Module      string
	Port        string
	Detail      string
	Diagnostics string
	ExitCode    int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in module ")
		b.WriteString(e.Module)
	}
	if e.Port != "" {
		b.WriteString(" port ")
		b.WriteString(e.Port)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	if e.Diagnostics != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Diagnostics)
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same Kind. A target with a Phase set
// must also match the phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the module name
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Port sets the port name
func (b *Builder) Port(name string) *Builder {
	b.err.Port = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Diagnostics attaches captured tool output
func (b *Builder) Diagnostics(text string) *Builder {
	b.err.Diagnostics = strings.TrimSpace(text)
	return b
}

// ExitCode records the exit status of a failed tool
func (b *Builder) ExitCode(code int) *Builder {
	b.err.ExitCode = code
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// PortWidth reports a malformed bit range.
func PortWidth(port string, msb, lsb int) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindPortWidth,
		Port:   port,
		Detail: fmt.Sprintf("invalid bit range [%d:%d]: msb must be >= lsb >= 0", msb, lsb),
	}
}

// Symbol reports an entry point missing from a loaded artifact.
func Symbol(module, symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSymbol,
		Module: module,
		Detail: fmt.Sprintf("entry point %q not found; artifact and shim are out of sync", symbol),
		Cause:  cause,
	}
}

// ValueShape reports a wide value whose word count does not match the port.
func ValueShape(module, port string, want, got int) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindValueShape,
		Module: module,
		Port:   port,
		Detail: fmt.Sprintf("expected %d words, got %d", want, got),
	}
}

// Lifecycle reports a teardown ordering violation.
func Lifecycle(module, detail string) *Error {
	return &Error{
		Phase:  PhaseLifetime,
		Kind:   KindLifecycle,
		Module: module,
		Detail: detail,
	}
}

// NoSuchPort reports an access to an undeclared port.
func NoSuchPort(module, port string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindNoSuchPort,
		Module: module,
		Port:   port,
		Detail: "port is not declared on this binding",
	}
}

// Unsupported reports an operation the artifact was not built for.
func Unsupported(module, what string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindUnsupported,
		Module: module,
		Detail: what,
	}
}
