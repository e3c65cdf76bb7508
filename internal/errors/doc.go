// Package errors provides the structured error values reported by the binding engine.
//
// Every error carries the Phase it was raised in and a Kind. Callers test the
// category with the standard library:
//
//	if errors.Is(err, hdlerrors.ErrSymbol) {
//		// artifact and shim disagree, rebuild
//	}
//
// Use the Builder for construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindBuild).
//		Module("main").
//		Detail("verilator exited with status %d", code).
//		Diagnostics(stderr).
//		Build()
package errors
