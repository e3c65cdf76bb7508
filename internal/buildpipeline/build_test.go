package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hdlbind/internal/cache"
	hdlerrors "hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/shim"
	runtimeembed "hdlbind/runtime"
)

// countingToolchain stands in for verilator and make. Compile writes a
// placeholder library so the builder has something to install.
type countingToolchain struct {
	verilate atomic.Int32
	compile  atomic.Int32
	failWith error
	delay    time.Duration

	mu   sync.Mutex
	jobs []Job
}

func (f *countingToolchain) Verilate(ctx context.Context, job *Job) error {
	f.verilate.Add(1)
	f.mu.Lock()
	f.jobs = append(f.jobs, *job)
	f.mu.Unlock()
	for _, want := range []string{job.Shim, filepath.Join(job.WorkDir, runtimeembed.HeaderName)} {
		if _, err := os.Stat(want); err != nil {
			return fmt.Errorf("expected %s before translation: %w", want, err)
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.failWith
}

func (f *countingToolchain) Compile(_ context.Context, job *Job) (string, error) {
	f.compile.Add(1)
	if err := os.MkdirAll(job.ObjDir, 0o750); err != nil {
		return "", err
	}
	lib := filepath.Join(job.ObjDir, "lib"+job.LibName+".so")
	if err := os.WriteFile(lib, []byte("fake model "+job.Module.Name), 0o600); err != nil {
		return "", err
	}
	return lib, nil
}

func (f *countingToolchain) runs() int32 { return f.verilate.Load() }

func writeSource(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func counterModule(t *testing.T, name, src string) *ports.Module {
	t.Helper()
	mod, err := ports.NewModule(name, src, []ports.Port{
		ports.MustPort("clk", ports.Input, 0, 0),
		ports.MustPort("d", ports.Input, 199, 0),
		ports.MustPort("q", ports.Output, 199, 0),
	}, ports.WithClock("clk"))
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func newTestBuilder(t *testing.T, tc Toolchain, opts Options) *Builder {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), ".hdlbind"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBuilder(c, tc, opts)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBuild_ReusesUnchangedInput(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{})
	mod := counterModule(t, "main", src)
	ctx := context.Background()

	first, err := b.Build(ctx, &Request{Module: mod})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("first build reported as cached")
	}
	if _, err := os.Stat(first.Artifact); err != nil {
		t.Fatalf("artifact not installed: %v", err)
	}
	if !first.Timings.Has(StageVerilate) || !first.Timings.Has(StageCompile) {
		t.Fatal("expected toolchain stage timings")
	}

	second, err := b.Build(ctx, &Request{Module: mod})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Fatal("second build was not served from the cache")
	}
	if tc.runs() != 1 || tc.compile.Load() != 1 {
		t.Fatalf("toolchain invoked %d/%d times, want 1/1", tc.runs(), tc.compile.Load())
	}
	if second.Artifact != first.Artifact || second.Fingerprint != first.Fingerprint {
		t.Fatal("cached result does not match the original build")
	}
}

func TestBuild_CacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, filepath.Join(dir, "main.sv"), "module main; endmodule\n")
	cacheDir := filepath.Join(dir, ".hdlbind")
	tc := &countingToolchain{}

	for i := 0; i < 2; i++ {
		c, err := cache.Open(cacheDir)
		if err != nil {
			t.Fatal(err)
		}
		b, err := NewBuilder(c, tc, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := b.Build(context.Background(), &Request{Module: counterModule(t, "main", src)}); err != nil {
			t.Fatal(err)
		}
	}
	if tc.runs() != 1 {
		t.Fatalf("toolchain invoked %d times across processes, want 1", tc.runs())
	}
}

func TestBuild_RebuildsOnOneByteChange(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{})
	ctx := context.Background()

	first, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if err != nil {
		t.Fatal(err)
	}
	writeSource(t, src, "module main; endmodule \n")
	second, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached || tc.runs() != 2 {
		t.Fatalf("expected a rebuild, cached=%v runs=%d", second.Cached, tc.runs())
	}
	if first.Fingerprint == second.Fingerprint {
		t.Fatal("fingerprint did not change")
	}
}

func TestBuild_WorkspaceSourceChangeRebuilds(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, filepath.Join(dir, "main.sv"), "module main; endmodule\n")
	common := writeSource(t, filepath.Join(dir, "common.sv"), "package common; endpackage\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{Sources: []string{common, src}})
	ctx := context.Background()

	if _, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)}); err != nil {
		t.Fatal(err)
	}
	writeSource(t, common, "package common; localparam X = 1; endpackage\n")
	if _, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)}); err != nil {
		t.Fatal(err)
	}
	if tc.runs() != 2 {
		t.Fatalf("runs = %d, want 2", tc.runs())
	}

	job := tc.jobs[0]
	if len(job.Sources) != 2 {
		t.Fatalf("translator got %d sources, want 2 (deduplicated)", len(job.Sources))
	}
	if !slices.IsSorted(job.Sources) {
		t.Fatalf("sources not sorted: %v", job.Sources)
	}
}

func TestBuild_SameNameDifferentFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, filepath.Join(dir, "a", "top.sv"), "module top; endmodule\n")
	b2 := writeSource(t, filepath.Join(dir, "b", "top.sv"), "module top; endmodule\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{})
	ctx := context.Background()

	ra, err := b.Build(ctx, &Request{Module: counterModule(t, "top", a)})
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.Build(ctx, &Request{Module: counterModule(t, "top", b2)})
	if err != nil {
		t.Fatal(err)
	}
	if ra.Fingerprint == rb.Fingerprint || ra.Artifact == rb.Artifact {
		t.Fatal("same-named modules in different files share a cache entry")
	}
	if n := len(b.Cache().Entries()); n != 2 {
		t.Fatalf("cache has %d entries, want 2", n)
	}
}

func TestBuild_ToolchainSettingsAffectFingerprint(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	mod := counterModule(t, "main", src)

	fingerprint := func(opts Options) string {
		b := newTestBuilder(t, &countingToolchain{}, opts)
		res, err := b.Build(context.Background(), &Request{Module: mod})
		if err != nil {
			t.Fatal(err)
		}
		return res.Fingerprint.Hex()
	}

	base := fingerprint(Options{})
	if base != fingerprint(Options{}) {
		t.Fatal("fingerprint is not stable across caches")
	}
	for name, opts := range map[string]Options{
		"optimization": {Optimization: 3},
		"trace":        {Trace: true},
		"args":         {Args: []string{"-Wno-fatal"}},
	} {
		if fingerprint(opts) == base {
			t.Errorf("%s did not change the fingerprint", name)
		}
	}
	if fingerprint(Options{Args: []string{"-a", "-b"}}) == fingerprint(Options{Args: []string{"-b", "-a"}}) {
		t.Error("argument order is not part of the fingerprint")
	}
}

func TestBuild_FailureIsNotCached(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	failure := hdlerrors.New(hdlerrors.PhaseBuild, hdlerrors.KindBuild).
		Module("main").
		Detail("verilator exited with status 1").
		Diagnostics("%Error: main.sv:1: syntax error").
		ExitCode(1).
		Build()
	tc := &countingToolchain{failWith: failure}
	b := newTestBuilder(t, tc, Options{})
	ctx := context.Background()

	_, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if !errors.Is(err, hdlerrors.ErrBuild) {
		t.Fatalf("expected build error, got %v", err)
	}
	if n := len(b.Cache().Entries()); n != 0 {
		t.Fatalf("failed build left %d cache entries", n)
	}

	tc.failWith = nil
	res, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached || tc.runs() != 2 {
		t.Fatalf("expected retry to rebuild, cached=%v runs=%d", res.Cached, tc.runs())
	}
}

func TestBuild_StaleArtifactRebuilds(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{})
	ctx := context.Background()

	first, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(first.Artifact); err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(ctx, &Request{Module: counterModule(t, "main", src)})
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached || tc.runs() != 2 {
		t.Fatal("missing artifact did not trigger a rebuild")
	}
	if _, err := os.Stat(second.Artifact); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_ForceRebuild(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{ForceRebuild: true})
	for i := 0; i < 2; i++ {
		res, err := b.Build(context.Background(), &Request{Module: counterModule(t, "main", src)})
		if err != nil {
			t.Fatal(err)
		}
		if res.Cached {
			t.Fatal("forced build reported as cached")
		}
	}
	if tc.runs() != 2 {
		t.Fatalf("runs = %d, want 2", tc.runs())
	}
}

func TestBuild_ConcurrentSameFingerprint(t *testing.T) {
	src := writeSource(t, filepath.Join(t.TempDir(), "main.sv"), "module main; endmodule\n")
	tc := &countingToolchain{delay: 50 * time.Millisecond}
	b := newTestBuilder(t, tc, Options{})
	mod := counterModule(t, "main", src)

	const callers = 8
	var wg sync.WaitGroup
	artifacts := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Build(context.Background(), &Request{Module: mod})
			artifacts[i] = res.Artifact
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if artifacts[i] != artifacts[0] {
			t.Fatalf("caller %d got artifact %q, want %q", i, artifacts[i], artifacts[0])
		}
	}
	if tc.runs() != 1 {
		t.Fatalf("toolchain ran %d times for one fingerprint", tc.runs())
	}
}

func TestBuildAll(t *testing.T) {
	dir := t.TempDir()
	var reqs []*Request
	for _, name := range []string{"alu", "fifo", "uart"} {
		src := writeSource(t, filepath.Join(dir, name+".sv"), "module "+name+"; endmodule\n")
		reqs = append(reqs, &Request{Module: counterModule(t, name, src)})
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	sink := FuncSink(func(evt Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})
	tc := &countingToolchain{}
	b := newTestBuilder(t, tc, Options{Jobs: 2, Progress: sink})

	results, err := b.BuildAll(context.Background(), reqs)
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range results {
		if res.Module != reqs[i].Module.Name {
			t.Fatalf("result %d is for %s, want %s", i, res.Module, reqs[i].Module.Name)
		}
		if res.Artifact == "" {
			t.Fatalf("result %d has no artifact", i)
		}
	}
	if tc.runs() != 3 {
		t.Fatalf("runs = %d, want 3", tc.runs())
	}

	done := 0
	for _, evt := range events {
		if evt.Stage == StageInstall && evt.Status == StatusDone {
			done++
		}
	}
	if done != 3 {
		t.Fatalf("saw %d install events, want 3", done)
	}
}

func TestBuild_InvalidRequests(t *testing.T) {
	b := newTestBuilder(t, &countingToolchain{}, Options{})
	if _, err := b.Build(context.Background(), nil); !errors.Is(err, hdlerrors.ErrInvalidModule) {
		t.Fatalf("nil request: %v", err)
	}

	missing := counterModule(t, "main", filepath.Join(t.TempDir(), "nope.sv"))
	if _, err := b.Build(context.Background(), &Request{Module: missing}); !errors.Is(err, hdlerrors.ErrSourceMissing) {
		t.Fatalf("missing source: %v", err)
	}

	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewBuilder(c, &countingToolchain{}, Options{Optimization: 4}); !errors.Is(err, hdlerrors.ErrConfig) {
		t.Fatalf("optimization 4: %v", err)
	}
}

func TestVerilatorArgs(t *testing.T) {
	mod, err := ports.NewModule("main", "/rtl/main.sv", []ports.Port{ports.MustPort("a", ports.Input, 7, 0)})
	if err != nil {
		t.Fatal(err)
	}
	job := &Job{
		Module:       mod,
		Sources:      []string{"/rtl/common.sv", "/rtl/main.sv"},
		Shim:         "/work/hdlbind_main_shim.cpp",
		WorkDir:      "/work",
		ObjDir:       "/work/obj",
		LibName:      shim.LibraryName("main"),
		Optimization: 2,
		Trace:        true,
		Args:         []string{"-Wno-fatal"},
	}
	got := VerilatorArgs(job)
	for _, want := range []string{"--cc", "--lib-create", "hdlbind_main", "--top-module", "-Mdir", "/work/obj", "-I/work", "-O2", "--trace", "-Wno-fatal"} {
		if !slices.Contains(got, want) {
			t.Errorf("args %v missing %q", got, want)
		}
	}
	if got[len(got)-1] != job.Shim {
		t.Errorf("shim must be the last argument, got %q", got[len(got)-1])
	}

	job.Optimization = 0
	job.Trace = false
	got = VerilatorArgs(job)
	if slices.Contains(got, "--trace") || slices.ContainsFunc(got, func(s string) bool { return len(s) == 3 && s[:2] == "-O" }) {
		t.Errorf("unexpected optional flags in %v", got)
	}
}

func TestVerilatorToolchain_ReportsExitStatus(t *testing.T) {
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	mod, err := ports.NewModule("main", "/rtl/main.sv", []ports.Port{ports.MustPort("a", ports.Input, 7, 0)})
	if err != nil {
		t.Fatal(err)
	}
	tc := &VerilatorToolchain{Verilator: falsePath}
	err = tc.Verilate(context.Background(), &Job{Module: mod, ObjDir: t.TempDir(), LibName: "hdlbind_main"})

	var herr *hdlerrors.Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected structured error, got %v", err)
	}
	if herr.Kind != hdlerrors.KindBuild || herr.ExitCode != 1 || herr.Module != "main" {
		t.Fatalf("unexpected error: %+v", herr)
	}

	tc = &VerilatorToolchain{Verilator: filepath.Join(t.TempDir(), "no-such-verilator")}
	if err := tc.Available(); !errors.Is(err, hdlerrors.ErrBuild) {
		t.Fatalf("Available: %v", err)
	}
}

func TestTimings(t *testing.T) {
	var tm Timings
	tm.Set(StageVerilate, 3*time.Millisecond)
	tm.Set(StageCompile, 5*time.Millisecond)
	tm.Set(StageVerilate, 4*time.Millisecond)

	stages := tm.Stages()
	if len(stages) != 2 || stages[0].Stage != StageVerilate || stages[1].Stage != StageCompile {
		t.Fatalf("stages = %+v", stages)
	}
	if tm.Duration(StageVerilate) != 4*time.Millisecond || tm.Has(StageInstall) || tm.Duration(StageInstall) != 0 {
		t.Fatalf("lookup mismatch: %+v", stages)
	}
	if tm.Total() != 9*time.Millisecond {
		t.Fatalf("total = %v", tm.Total())
	}
	stages[0].Duration = 0
	if tm.Duration(StageVerilate) == 0 {
		t.Fatal("Stages must return a copy")
	}
}

func TestNativeRuntime_ExtractsEmbeddedSources(t *testing.T) {
	native, err := loadNativeRuntime()
	if err != nil {
		t.Fatal(err)
	}
	if native.digest.IsZero() {
		t.Fatal("support digest not computed")
	}
	again, err := loadNativeRuntime()
	if err != nil || again.digest != native.digest {
		t.Fatalf("support digest not stable: %v", err)
	}

	dir := t.TempDir()
	if err := native.extract(dir); err != nil {
		t.Fatal(err)
	}
	for _, f := range native.files {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.name)))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(f.data) {
			t.Errorf("%s extracted with different content", f.name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, runtimeembed.HeaderName)); err != nil {
		t.Fatalf("shim header not extracted: %v", err)
	}
}
