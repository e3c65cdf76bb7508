// Package config loads the hdlbind.toml workspace manifest.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
	"hdlbind/internal/project"
)

// DefaultCacheDir is used when [workspace].cache_dir is not set.
const DefaultCacheDir = ".hdlbind"

// Config is a parsed workspace manifest.
type Config struct {
	Path string `toml:"-"`
	Root string `toml:"-"`

	Workspace WorkspaceConfig `toml:"workspace"`
	Verilator VerilatorConfig `toml:"verilator"`
	Modules   []ModuleConfig  `toml:"module"`
}

// WorkspaceConfig is the [workspace] table.
type WorkspaceConfig struct {
	CacheDir string   `toml:"cache_dir"`
	Sources  []string `toml:"sources"`
}

// VerilatorConfig is the [verilator] table.
type VerilatorConfig struct {
	Executable   string   `toml:"executable"`
	Make         string   `toml:"make"`
	Optimization int      `toml:"optimization"`
	Trace        bool     `toml:"trace"`
	ForceRebuild bool     `toml:"force_rebuild"`
	Jobs         int      `toml:"jobs"`
	Args         []string `toml:"args"`
}

// ModuleConfig is one [[module]] entry.
type ModuleConfig struct {
	Name   string       `toml:"name"`
	Source string       `toml:"source"`
	Clock  string       `toml:"clock"`
	Reset  string       `toml:"reset"`
	Ports  []PortConfig `toml:"ports"`
}

// PortConfig is one entry of a module's ports array.
type PortConfig struct {
	Name string `toml:"name"`
	MSB  int    `toml:"msb"`
	LSB  int    `toml:"lsb"`
	Dir  string `toml:"dir"`
}

func configError(path, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseConfig, errors.KindConfig).
		Detail("%s: %s", path, fmt.Sprintf(format, args...)).
		Build()
}

// Find walks up from startDir to the nearest hdlbind.toml and loads it.
func Find(startDir string) (*Config, bool, error) {
	path, ok, err := project.FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

// Load parses and validates the manifest at path.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	var cfg Config
	meta, err := toml.DecodeFile(abs, &cfg)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindConfig).
			Detail("%s: failed to parse TOML", abs).
			Cause(err).
			Build()
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, configError(abs, "unknown keys: %s", strings.Join(keys, ", "))
	}
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)

	if err := cfg.validate(meta); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate(meta toml.MetaData) error {
	if meta.IsDefined("workspace", "cache_dir") && strings.TrimSpace(c.Workspace.CacheDir) == "" {
		return configError(c.Path, "[workspace].cache_dir must not be empty")
	}
	if o := c.Verilator.Optimization; o < 0 || o > 3 {
		return configError(c.Path, "[verilator].optimization must be between 0 and 3, got %d", o)
	}
	if c.Verilator.Jobs < 0 {
		return configError(c.Path, "[verilator].jobs must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Modules))
	for i, m := range c.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return configError(c.Path, "[[module]] #%d: missing name", i+1)
		}
		if _, dup := seen[m.Name]; dup {
			return configError(c.Path, "[[module]] %s is declared twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if strings.TrimSpace(m.Source) == "" {
			return configError(c.Path, "[[module]] %s: missing source", m.Name)
		}
		if len(m.Ports) == 0 {
			return configError(c.Path, "[[module]] %s: missing ports", m.Name)
		}
		for j, p := range m.Ports {
			if strings.TrimSpace(p.Name) == "" {
				return configError(c.Path, "[[module]] %s: port #%d has no name", m.Name, j+1)
			}
			if strings.TrimSpace(p.Dir) == "" {
				return configError(c.Path, "[[module]] %s: port %s has no dir", m.Name, p.Name)
			}
		}
	}
	return nil
}

// resolve makes a manifest-relative path absolute.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// CacheDir returns the absolute cache directory.
func (c *Config) CacheDir() string {
	dir := c.Workspace.CacheDir
	if dir == "" {
		dir = DefaultCacheDir
	}
	return c.resolve(dir)
}

// Sources returns the workspace-wide sources as absolute paths.
func (c *Config) Sources() []string {
	out := make([]string, len(c.Workspace.Sources))
	for i, s := range c.Workspace.Sources {
		out[i] = c.resolve(s)
	}
	return out
}

// Module converts the named [[module]] entry.
func (c *Config) Module(name string) (*ports.Module, error) {
	for i := range c.Modules {
		if c.Modules[i].Name == name {
			return c.toModule(&c.Modules[i])
		}
	}
	return nil, configError(c.Path, "no [[module]] named %q", name)
}

// AllModules converts every [[module]] entry, in manifest order.
func (c *Config) AllModules() ([]*ports.Module, error) {
	out := make([]*ports.Module, 0, len(c.Modules))
	for i := range c.Modules {
		mod, err := c.toModule(&c.Modules[i])
		if err != nil {
			return nil, err
		}
		out = append(out, mod)
	}
	return out, nil
}

func (c *Config) toModule(m *ModuleConfig) (*ports.Module, error) {
	list := make([]ports.Port, 0, len(m.Ports))
	for _, pc := range m.Ports {
		dir, err := ports.ParseDirection(pc.Dir)
		if err != nil {
			return nil, configError(c.Path, "[[module]] %s: port %s: %v", m.Name, pc.Name, err)
		}
		p, err := ports.NewPort(pc.Name, dir, pc.MSB, pc.LSB)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	var opts []ports.ModuleOption
	if m.Clock != "" {
		opts = append(opts, ports.WithClock(m.Clock))
	}
	if m.Reset != "" {
		opts = append(opts, ports.WithReset(m.Reset))
	}
	return ports.NewModule(m.Name, c.resolve(m.Source), list, opts...)
}
