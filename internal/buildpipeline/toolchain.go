package buildpipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/shim"
)

// Job describes one toolchain run inside a scratch directory.
type Job struct {
	Module  *ports.Module
	Sources []string // normalized HDL sources
	Shim    string   // generated shim path
	WorkDir string   // holds the shim and support header
	ObjDir  string   // translator output directory
	LibName string   // library base name without "lib" prefix and extension

	Optimization int
	Trace        bool
	Args         []string
}

// Toolchain turns HDL sources plus a shim into a loadable shared library.
type Toolchain interface {
	// Verilate translates the sources into a native build project in job.ObjDir.
	Verilate(ctx context.Context, job *Job) error
	// Compile builds the project and returns the path of the shared library.
	Compile(ctx context.Context, job *Job) (string, error)
}

// VerilatorToolchain shells out to verilator and make.
type VerilatorToolchain struct {
	Verilator string // defaults to "verilator"
	Make      string // defaults to "make"
	MakeJobs  int    // passed as -j when positive
	// Echo receives each command line before it runs, when set.
	Echo io.Writer
}

func (t *VerilatorToolchain) verilatorExe() string {
	if t.Verilator == "" {
		return "verilator"
	}
	return t.Verilator
}

func (t *VerilatorToolchain) makeExe() string {
	if t.Make == "" {
		return "make"
	}
	return t.Make
}

// Available checks that both executables can be found.
func (t *VerilatorToolchain) Available() error {
	for _, name := range []string{t.verilatorExe(), t.makeExe()} {
		if _, err := exec.LookPath(name); err != nil {
			return errors.New(errors.PhaseBuild, errors.KindBuild).
				Detail("%s not found; install verilator and make (e.g. sudo apt-get install -y verilator make)", name).
				Cause(err).
				Build()
		}
	}
	return nil
}

// VerilatorArgs returns the translator command line for job.
func VerilatorArgs(job *Job) []string {
	args := []string{
		"--cc",
		"--lib-create", job.LibName,
		"--top-module", job.Module.Name,
		"-Mdir", job.ObjDir,
		"-CFLAGS", "-fPIC",
		"-CFLAGS", "-I" + job.WorkDir,
	}
	if job.Optimization > 0 {
		args = append(args, "-O"+strconv.Itoa(job.Optimization))
	}
	if job.Trace {
		args = append(args, "--trace")
	}
	args = append(args, job.Args...)
	args = append(args, job.Sources...)
	args = append(args, job.Shim)
	return args
}

func (t *VerilatorToolchain) Verilate(ctx context.Context, job *Job) error {
	return t.run(ctx, job.Module.Name, t.verilatorExe(), VerilatorArgs(job)...)
}

func (t *VerilatorToolchain) Compile(ctx context.Context, job *Job) (string, error) {
	args := []string{"-C", job.ObjDir, "-f", shim.ModelClass(job.Module.Name) + ".mk"}
	if t.MakeJobs > 0 {
		args = append(args, "-j", strconv.Itoa(t.MakeJobs))
	}
	if err := t.run(ctx, job.Module.Name, t.makeExe(), args...); err != nil {
		return "", err
	}
	lib := filepath.Join(job.ObjDir, "lib"+job.LibName+".so")
	if _, err := os.Stat(lib); err != nil {
		return "", errors.New(errors.PhaseBuild, errors.KindBuild).
			Module(job.Module.Name).
			Detail("%s finished but produced no %s", t.makeExe(), filepath.Base(lib)).
			Cause(err).
			Build()
	}
	return lib, nil
}

func (t *VerilatorToolchain) run(ctx context.Context, module, name string, args ...string) error {
	if t.Echo != nil {
		if _, err := fmt.Fprintf(t.Echo, "%s %s\n", name, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("failed to print command: %w", err)
		}
	}
	Logger().Debug("running toolchain command",
		zap.String("module", module),
		zap.String("command", name),
		zap.Strings("args", args))

	// #nosec G204 -- executables and arguments come from the build configuration
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.New(errors.PhaseBuild, errors.KindBuild).
			Module(module).
			Detail("%s exited with status %d", filepath.Base(name), exitErr.ExitCode()).
			Diagnostics(output.String()).
			ExitCode(exitErr.ExitCode()).
			Cause(err).
			Build()
	}
	return errors.New(errors.PhaseBuild, errors.KindBuild).
		Module(module).
		Detail("failed to run %s", name).
		Diagnostics(output.String()).
		ExitCode(-1).
		Cause(err).
		Build()
}
