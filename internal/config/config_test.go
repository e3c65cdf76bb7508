package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	hdlerrors "hdlbind/internal/errors"
	"hdlbind/internal/ports"
)

const sampleManifest = `
[workspace]
cache_dir = "build/cache"
sources = ["rtl/common.sv"]

[verilator]
executable = "verilator"
make = "gmake"
optimization = 3
trace = true
jobs = 4
args = ["-Wno-fatal"]

[[module]]
name = "very_wide_registered"
source = "rtl/very_wide_registered.sv"
clock = "clk"
ports = [
  { name = "clk", msb = 0, lsb = 0, dir = "input" },
  { name = "very_wide_input", msb = 199, lsb = 0, dir = "input" },
  { name = "very_wide_output", msb = 199, lsb = 0, dir = "output" },
]

[[module]]
name = "counter"
source = "/abs/counter.sv"
clock = "clk"
reset = "rst"
ports = [
  { name = "clk", msb = 0, lsb = 0, dir = "in" },
  { name = "rst", msb = 0, lsb = 0, dir = "in" },
  { name = "count", msb = 7, lsb = 0, dir = "out" },
]
`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hdlbind.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeManifest(t, dir, sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := filepath.Abs(dir)
	if cfg.Root != root {
		t.Fatalf("root = %q, want %q", cfg.Root, root)
	}
	if got, want := cfg.CacheDir(), filepath.Join(root, "build", "cache"); got != want {
		t.Fatalf("cache dir = %q, want %q", got, want)
	}
	if got := cfg.Sources(); len(got) != 1 || got[0] != filepath.Join(root, "rtl", "common.sv") {
		t.Fatalf("sources = %v", got)
	}
	v := cfg.Verilator
	if v.Make != "gmake" || v.Optimization != 3 || !v.Trace || v.Jobs != 4 || len(v.Args) != 1 {
		t.Fatalf("verilator = %+v", v)
	}

	mods, err := cfg.AllModules()
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 2 || mods[0].Name != "very_wide_registered" || mods[1].Name != "counter" {
		t.Fatalf("modules out of order: %v", mods)
	}
	out, ok := mods[0].Port("very_wide_output")
	if !ok || out.Class() != ports.Wide(7) || out.Direction() != ports.Output {
		t.Fatalf("very_wide_output = %v", out)
	}
	if mods[0].SourcePath != filepath.Join(root, "rtl", "very_wide_registered.sv") {
		t.Fatalf("source not resolved against the manifest: %q", mods[0].SourcePath)
	}

	counter, err := cfg.Module("counter")
	if err != nil {
		t.Fatal(err)
	}
	if counter.Reset != "rst" || counter.SourcePath != "/abs/counter.sv" {
		t.Fatalf("counter = %+v", counter)
	}
	if _, err := cfg.Module("missing"); !errors.Is(err, hdlerrors.ErrConfig) {
		t.Fatalf("missing module: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeManifest(t, dir, "[workspace]\n"))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := filepath.Abs(dir)
	if cfg.CacheDir() != filepath.Join(root, DefaultCacheDir) {
		t.Fatalf("cache dir = %q", cfg.CacheDir())
	}
	if cfg.Verilator.Optimization != 0 || len(cfg.Modules) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[workspace\n", "failed to parse"},
		{"unknown key", "[workspace]\ncache = 1\n", "unknown keys: workspace.cache"},
		{"empty cache dir", "[workspace]\ncache_dir = \"\"\n", "cache_dir"},
		{"optimization range", "[verilator]\noptimization = 4\n", "optimization"},
		{"negative jobs", "[verilator]\njobs = -1\n", "jobs"},
		{"module without name", "[[module]]\nsource = \"a.sv\"\n", "missing name"},
		{"module without source", "[[module]]\nname = \"a\"\n", "missing source"},
		{"module without ports", "[[module]]\nname = \"a\"\nsource = \"a.sv\"\n", "missing ports"},
		{
			"duplicate module",
			"[[module]]\nname = \"a\"\nsource = \"a.sv\"\nports = [{ name = \"x\", dir = \"in\" }]\n" +
				"[[module]]\nname = \"a\"\nsource = \"b.sv\"\nports = [{ name = \"x\", dir = \"in\" }]\n",
			"declared twice",
		},
		{"port without dir", "[[module]]\nname = \"a\"\nsource = \"a.sv\"\nports = [{ name = \"x\" }]\n", "no dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, t.TempDir(), tt.content))
			if !errors.Is(err, hdlerrors.ErrConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestModule_InvalidPorts(t *testing.T) {
	tests := []struct {
		name    string
		ports   string
		extra   string
		wantErr error
	}{
		{"bad direction", `{ name = "x", dir = "sideways" }`, "", hdlerrors.ErrConfig},
		{"inverted range", `{ name = "x", msb = 0, lsb = 3, dir = "in" }`, "", hdlerrors.ErrPortWidth},
		{"escaped name", `{ name = "a b", dir = "in" }`, "", hdlerrors.ErrInvalidModule},
		{"wide clock", `{ name = "clk", msb = 1, lsb = 0, dir = "in" }`, "clock = \"clk\"\n", hdlerrors.ErrInvalidModule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "[[module]]\nname = \"m\"\nsource = \"m.sv\"\n" + tt.extra + "ports = [" + tt.ports + "]\n"
			cfg, err := Load(writeManifest(t, t.TempDir(), content))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := cfg.Module("m"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, sampleManifest)
	nested := filepath.Join(root, "tb", "unit")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}
	cfg, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find = %v, %v", ok, err)
	}
	if len(cfg.Modules) != 2 {
		t.Fatalf("loaded %d modules", len(cfg.Modules))
	}
}
