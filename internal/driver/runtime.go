// Package driver ties building, caching and loading together behind a Runtime.
package driver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"hdlbind/internal/binding"
	"hdlbind/internal/buildpipeline"
	"hdlbind/internal/cache"
	"hdlbind/internal/config"
	"hdlbind/internal/errors"
	"hdlbind/internal/loader"
	"hdlbind/internal/ports"
	"hdlbind/internal/project"
)

// Options configures a Runtime.
type Options struct {
	// CacheDir holds the manifest, artifacts and scratch directories.
	CacheDir string
	// Sources are HDL files passed to the translator with every module.
	Sources []string

	Verilator    string
	Make         string
	MakeJobs     int
	Optimization int
	Trace        bool
	Args         []string
	ForceRebuild bool
	// Jobs bounds concurrent module builds; <= 0 uses GOMAXPROCS.
	Jobs int
	// KeepWork leaves build scratch directories in place.
	KeepWork bool

	Progress buildpipeline.ProgressSink
	// Echo receives toolchain command lines when set.
	Echo io.Writer

	// Toolchain replaces verilator and make, mainly for tests.
	Toolchain buildpipeline.Toolchain
	// Open replaces dynamic loading, mainly for tests.
	Open func(path string) (loader.Library, error)
}

// OptionsFromConfig maps a workspace manifest to runtime options.
func OptionsFromConfig(cfg *config.Config) Options {
	v := cfg.Verilator
	return Options{
		CacheDir:     cfg.CacheDir(),
		Sources:      cfg.Sources(),
		Verilator:    v.Executable,
		Make:         v.Make,
		Optimization: v.Optimization,
		Trace:        v.Trace,
		Args:         v.Args,
		ForceRebuild: v.ForceRebuild,
		Jobs:         v.Jobs,
	}
}

// Runtime builds modules on demand and keeps one Binding per artifact.
// It is safe for concurrent use.
type Runtime struct {
	opts    Options
	cache   *cache.Cache
	builder *buildpipeline.Builder
	open    func(string) (loader.Library, error)

	mu       sync.Mutex
	bindings map[project.Digest]*binding.Binding
	closed   bool
}

// New opens the cache and prepares the toolchain.
func New(opts Options) (*Runtime, error) {
	if opts.CacheDir == "" {
		opts.CacheDir = config.DefaultCacheDir
	}
	c, err := cache.Open(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	tc := opts.Toolchain
	if tc == nil {
		tc = &buildpipeline.VerilatorToolchain{
			Verilator: opts.Verilator,
			Make:      opts.Make,
			MakeJobs:  opts.MakeJobs,
			Echo:      opts.Echo,
		}
	}
	builder, err := buildpipeline.NewBuilder(c, tc, buildpipeline.Options{
		Sources:      opts.Sources,
		Optimization: opts.Optimization,
		Trace:        opts.Trace,
		Args:         opts.Args,
		ForceRebuild: opts.ForceRebuild,
		Jobs:         opts.Jobs,
		KeepWork:     opts.KeepWork,
		Progress:     opts.Progress,
	})
	if err != nil {
		return nil, err
	}
	open := opts.Open
	if open == nil {
		open = loader.Open
	}
	return &Runtime{
		opts:     opts,
		cache:    c,
		builder:  builder,
		open:     open,
		bindings: make(map[project.Digest]*binding.Binding),
	}, nil
}

// Cache returns the runtime's build cache.
func (r *Runtime) Cache() *cache.Cache { return r.cache }

// Build builds (or reuses) the artifacts for mods concurrently without loading them.
func (r *Runtime) Build(ctx context.Context, mods ...*ports.Module) ([]buildpipeline.Result, error) {
	reqs := make([]*buildpipeline.Request, len(mods))
	for i, mod := range mods {
		reqs[i] = &buildpipeline.Request{Module: mod}
	}
	return r.builder.BuildAll(ctx, reqs)
}

// Load returns the binding for mod, building the artifact if needed. Repeated
// calls for an unchanged module return the same Binding.
func (r *Runtime) Load(ctx context.Context, mod *ports.Module) (*binding.Binding, error) {
	res, err := r.builder.Build(ctx, &buildpipeline.Request{Module: mod})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Lifecycle(mod.Name, "runtime is closed")
	}
	if b, ok := r.bindings[res.Fingerprint]; ok {
		return b, nil
	}
	lib, err := r.open(res.Artifact)
	if err != nil {
		return nil, err
	}
	b, err := binding.Load(lib, mod, binding.Options{Trace: r.opts.Trace})
	if err != nil {
		return nil, err
	}
	r.bindings[res.Fingerprint] = b
	Logger().Info("model loaded",
		zap.String("module", mod.Name),
		zap.String("artifact", res.Artifact),
		zap.Bool("cached", res.Cached))
	return b, nil
}

// CreateModel loads mod and constructs one instance of it.
func (r *Runtime) CreateModel(ctx context.Context, mod *ports.Module) (*binding.Instance, error) {
	b, err := r.Load(ctx, mod)
	if err != nil {
		return nil, err
	}
	return b.New()
}

// Close closes every binding. Bindings with live instances stay loaded and
// are reported; Close may be called again once they are destroyed.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for fp, b := range r.bindings {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.bindings, fp)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close runtime: %w", stderrors.Join(errs...))
	}
	r.closed = true
	return nil
}
