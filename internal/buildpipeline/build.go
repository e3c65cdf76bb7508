// Package buildpipeline turns module descriptions into cached, loadable model libraries.
package buildpipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"hdlbind/internal/cache"
	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/project"
	"hdlbind/internal/shim"
	runtimeembed "hdlbind/runtime"
)

// Options configures every build run by a Builder.
type Options struct {
	// Sources are workspace-wide HDL files passed to the translator with every module.
	Sources []string
	// Optimization passes -O<level> to the translator when in 1..3; 0 keeps its default.
	Optimization int
	Trace        bool
	Args         []string
	// ForceRebuild skips the cache lookup. Successful builds still replace the entry.
	ForceRebuild bool
	// Jobs bounds BuildAll concurrency; <= 0 uses GOMAXPROCS.
	Jobs int
	// KeepWork leaves scratch directories in place for inspection.
	KeepWork bool
	Progress ProgressSink
}

// Request asks for one module to be built.
type Request struct {
	Module *ports.Module
}

// Result describes the artifact a build produced or reused.
type Result struct {
	Module      string
	Fingerprint project.Digest
	Artifact    string
	Cached      bool
	Timings     Timings
}

// Builder builds modules through a Toolchain into a Cache.
type Builder struct {
	cache     *cache.Cache
	toolchain Toolchain
	opts      Options
	inflight  singleflight.Group
}

// NewBuilder returns a builder. Options are copied.
func NewBuilder(c *cache.Cache, tc Toolchain, opts Options) (*Builder, error) {
	if c == nil {
		return nil, fmt.Errorf("missing cache")
	}
	if tc == nil {
		return nil, fmt.Errorf("missing toolchain")
	}
	if opts.Optimization < 0 || opts.Optimization > 3 {
		return nil, errors.New(errors.PhaseConfig, errors.KindConfig).
			Detail("optimization level must be between 0 and 3, got %d", opts.Optimization).
			Build()
	}
	opts.Sources = append([]string(nil), opts.Sources...)
	opts.Args = append([]string(nil), opts.Args...)
	return &Builder{cache: c, toolchain: tc, opts: opts}, nil
}

// Cache returns the cache the builder writes into.
func (b *Builder) Cache() *cache.Cache { return b.cache }

// toolchainKeys lists the settings that change the produced artifact.
func (b *Builder) toolchainKeys() []string {
	return []string{
		"optimization=" + strconv.Itoa(b.opts.Optimization),
		"trace=" + strconv.FormatBool(b.opts.Trace),
		// argument order matters, so the list is folded into one key
		"args=" + strings.Join(b.opts.Args, "\x00"),
	}
}

type prepared struct {
	mod     *ports.Module
	sources []project.SourceFile
	primary string
	shim    []byte
	native  *nativeRuntime
	fp      project.Digest
}

// Build returns an artifact for req, reusing the cached one when the
// fingerprint is unchanged and its file still exists.
func (b *Builder) Build(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if req == nil || req.Module == nil {
		return result, errors.New(errors.PhaseBuild, errors.KindInvalidModule).Detail("missing module").Build()
	}
	mod := req.Module
	result.Module = mod.Name

	fpStart := time.Now()
	emitStage(b.opts.Progress, mod.Name, StageFingerprint, StatusWorking, nil, 0)
	p, err := b.prepare(mod)
	if err != nil {
		emitStage(b.opts.Progress, mod.Name, StageFingerprint, StatusError, err, 0)
		return result, err
	}
	result.Fingerprint = p.fp
	result.Timings.Set(StageFingerprint, time.Since(fpStart))

	if !b.opts.ForceRebuild {
		if entry, ok := b.cache.Lookup(p.fp); ok {
			Logger().Debug("cache hit",
				zap.String("module", mod.Name),
				zap.String("fingerprint", p.fp.Short()))
			result.Artifact = entry.Artifact
			result.Cached = true
			emitStage(b.opts.Progress, mod.Name, StageInstall, StatusCached, nil, time.Since(fpStart))
			return result, nil
		}
	}
	Logger().Info("building model",
		zap.String("module", mod.Name),
		zap.String("source", p.primary),
		zap.String("fingerprint", p.fp.Short()),
		zap.Bool("forced", b.opts.ForceRebuild))

	ran := false
	v, err, _ := b.inflight.Do(p.fp.Hex(), func() (any, error) {
		ran = true
		return b.build(ctx, p)
	})
	if err != nil {
		return result, err
	}
	built := v.(Result)
	result.Artifact = built.Artifact
	if !ran || built.Cached {
		// another caller ran the toolchain for this fingerprint
		result.Cached = true
		emitStage(b.opts.Progress, mod.Name, StageInstall, StatusCached, nil, time.Since(fpStart))
		return result, nil
	}
	for _, st := range []Stage{StageShim, StageVerilate, StageCompile, StageInstall} {
		if built.Timings.Has(st) {
			result.Timings.Set(st, built.Timings.Duration(st))
		}
	}
	return result, nil
}

func (b *Builder) prepare(mod *ports.Module) (*prepared, error) {
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	sources, primary, err := project.ResolveSources(mod.Name, mod.SourcePath, b.opts.Sources)
	if err != nil {
		return nil, err
	}
	text, err := shim.Generate(mod, shim.Options{Trace: b.opts.Trace})
	if err != nil {
		return nil, err
	}
	native, err := loadNativeRuntime()
	if err != nil {
		return nil, err
	}
	fp, err := project.Fingerprint(&project.FingerprintInput{
		Module:     mod.Name,
		SourcePath: primary,
		Sources:    sources,
		Shim:       text,
		Header:     native.digest,
		Generator:  shim.Version,
		Classifier: ports.ClassifierVersion,
		Toolchain:  b.toolchainKeys(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint module %s: %w", mod.Name, err)
	}
	return &prepared{mod: mod, sources: sources, primary: primary, shim: text, native: native, fp: fp}, nil
}

// build runs the toolchain for p. The cache entry is written only after the
// artifact is in place.
func (b *Builder) build(ctx context.Context, p *prepared) (Result, error) {
	var result Result
	name := p.mod.Name
	progress := b.opts.Progress

	// a concurrent caller may have finished while this one waited
	if !b.opts.ForceRebuild {
		if entry, ok := b.cache.Lookup(p.fp); ok {
			result.Artifact = entry.Artifact
			result.Cached = true
			return result, nil
		}
	}

	work, err := b.cache.WorkDir(p.fp)
	if err != nil {
		return result, fmt.Errorf("failed to create work dir: %w", err)
	}
	if !b.opts.KeepWork {
		defer func() {
			if rmErr := os.RemoveAll(work); rmErr != nil {
				Logger().Warn("failed to clean work dir", zap.String("dir", work), zap.Error(rmErr))
			}
		}()
	}

	stageStart := time.Now()
	emitStage(progress, name, StageShim, StatusWorking, nil, 0)
	shimPath := filepath.Join(work, shim.FileName(name))
	if err := os.WriteFile(shimPath, p.shim, 0o600); err != nil {
		err = fmt.Errorf("failed to write shim: %w", err)
		emitStage(progress, name, StageShim, StatusError, err, 0)
		return result, err
	}
	if err := p.native.extract(work); err != nil {
		err = fmt.Errorf("failed to write support sources: %w", err)
		emitStage(progress, name, StageShim, StatusError, err, 0)
		return result, err
	}
	result.Timings.Set(StageShim, time.Since(stageStart))

	job := &Job{
		Module:       p.mod,
		Sources:      make([]string, 0, len(p.sources)),
		Shim:         shimPath,
		WorkDir:      work,
		ObjDir:       filepath.Join(work, "obj"),
		LibName:      shim.LibraryName(name),
		Optimization: b.opts.Optimization,
		Trace:        b.opts.Trace,
		Args:         b.opts.Args,
	}
	for _, src := range p.sources {
		job.Sources = append(job.Sources, src.Path)
	}

	stageStart = time.Now()
	emitStage(progress, name, StageVerilate, StatusWorking, nil, 0)
	if err := b.toolchain.Verilate(ctx, job); err != nil {
		emitStage(progress, name, StageVerilate, StatusError, err, 0)
		return result, err
	}
	result.Timings.Set(StageVerilate, time.Since(stageStart))
	emitStage(progress, name, StageVerilate, StatusDone, nil, result.Timings.Duration(StageVerilate))

	stageStart = time.Now()
	emitStage(progress, name, StageCompile, StatusWorking, nil, 0)
	lib, err := b.toolchain.Compile(ctx, job)
	if err != nil {
		emitStage(progress, name, StageCompile, StatusError, err, 0)
		return result, err
	}
	result.Timings.Set(StageCompile, time.Since(stageStart))
	emitStage(progress, name, StageCompile, StatusDone, nil, result.Timings.Duration(StageCompile))

	stageStart = time.Now()
	artifact, err := b.install(p.fp, lib)
	if err != nil {
		emitStage(progress, name, StageInstall, StatusError, err, 0)
		return result, err
	}
	if err := b.cache.Insert(cache.Entry{
		Fingerprint: p.fp,
		Artifact:    artifact,
		BuiltAt:     time.Now(),
		Module:      name,
		Source:      p.primary,
	}); err != nil {
		err = fmt.Errorf("failed to record cache entry: %w", err)
		emitStage(progress, name, StageInstall, StatusError, err, 0)
		return result, err
	}
	result.Artifact = artifact
	result.Timings.Set(StageInstall, time.Since(stageStart))
	emitStage(progress, name, StageInstall, StatusDone, nil, result.Timings.Total())

	Logger().Info("model built",
		zap.String("module", name),
		zap.String("artifact", artifact),
		zap.Duration("verilate", result.Timings.Duration(StageVerilate)),
		zap.Duration("compile", result.Timings.Duration(StageCompile)))
	return result, nil
}

// install copies lib into the fingerprint's artifact directory by rename, so
// a reader never observes a partially written library.
func (b *Builder) install(fp project.Digest, lib string) (string, error) {
	dir := b.cache.ArtifactDir(fp)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(lib))

	// #nosec G304 -- lib is produced by the toolchain inside the cache work dir
	in, err := os.Open(lib)
	if err != nil {
		return "", fmt.Errorf("failed to open built library: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()
	tmp, err := os.CreateTemp(dir, ".install-*")
	if err != nil {
		return "", fmt.Errorf("failed to stage artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	// #nosec G302 -- shared libraries must be readable and mappable by the current user
	if err := os.Chmod(tmpPath, 0o700); err != nil {
		return "", fmt.Errorf("failed to mark artifact executable: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("failed to install artifact: %w", err)
	}
	return dst, nil
}

// BuildAll builds every request concurrently, bounded by Options.Jobs.
// Results are returned in request order; the first error cancels the rest.
func (b *Builder) BuildAll(ctx context.Context, reqs []*Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}
	for _, req := range reqs {
		if req != nil && req.Module != nil {
			emitStage(b.opts.Progress, req.Module.Name, StageFingerprint, StatusQueued, nil, 0)
		}
	}

	jobs := b.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(reqs)))
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.Build(gctx, req)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

type nativeFile struct {
	name string // slash-separated, relative to runtimeembed.NativeDir
	data []byte
}

// nativeRuntime is the embedded support tree every shim compiles against.
type nativeRuntime struct {
	files  []nativeFile
	digest project.Digest
}

var loadNativeRuntime = sync.OnceValues(func() (*nativeRuntime, error) {
	fsys := runtimeembed.NativeRuntimeFS()
	rt := &nativeRuntime{}
	var parts []project.Digest
	err := fs.WalkDir(fsys, runtimeembed.NativeDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, runtimeembed.NativeDir+"/")
		rt.files = append(rt.files, nativeFile{name: name, data: data})
		parts = append(parts, project.HashBytes([]byte(name)), project.HashBytes(data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded support sources: %w", err)
	}
	if len(rt.files) == 0 {
		return nil, fmt.Errorf("no embedded support sources under %s", runtimeembed.NativeDir)
	}
	// WalkDir visits in lexical order, so the combined digest is stable.
	rt.digest = project.Combine(project.HashBytes([]byte(runtimeembed.NativeDir)), parts...)
	return rt, nil
})

func (rt *nativeRuntime) extract(dir string) error {
	for _, f := range rt.files {
		dst := filepath.Join(dir, filepath.FromSlash(f.name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(dst, f.data, 0o600); err != nil {
			return err
		}
	}
	return nil
}
