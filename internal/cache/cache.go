// Package cache persists compiled model artifacts keyed by build fingerprint.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"hdlbind/internal/project"
)

// Current schema version - increment when the manifest format changes
const manifestSchemaVersion uint16 = 1

const (
	manifestFile = "manifest.mp"
	artifactsDir = "artifacts"
	workDir      = "work"
)

// Entry records one successful build.
type Entry struct {
	Fingerprint project.Digest
	Artifact    string
	BuiltAt     time.Time
	Module      string
	Source      string
}

// manifest is the on-disk form.
type manifest struct {
	Schema  uint16
	Entries []manifestEntry
}

type manifestEntry struct {
	Fingerprint project.Digest
	Artifact    string
	BuiltAt     int64 // unix nanoseconds
	Module      string
	Source      string
}

// Cache maps fingerprints to artifacts inside one workspace directory.
// Thread-safe for concurrent access.
type Cache struct {
	mu      sync.Mutex
	dir     string
	entries map[project.Digest]Entry
}

// Open binds a cache to dir, creating it if needed. An unreadable or
// malformed manifest yields an empty cache.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("missing cache directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &Cache{dir: abs, entries: make(map[project.Digest]Entry)}
	c.load()
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// ArtifactDir is where the artifact for fp is stored.
func (c *Cache) ArtifactDir(fp project.Digest) string {
	return filepath.Join(c.dir, artifactsDir, fp.Hex())
}

// WorkDir creates a fresh scratch directory for a build of fp.
func (c *Cache) WorkDir(fp project.Digest) (string, error) {
	parent := filepath.Join(c.dir, workDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", err
	}
	return os.MkdirTemp(parent, fp.Short()+"-*")
}

// Lookup returns the entry for fp if its artifact still exists on disk.
// Entries whose artifact disappeared are dropped.
func (c *Cache) Lookup(fp project.Digest) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fp]
	if !ok {
		return Entry{}, false
	}
	info, err := os.Stat(entry.Artifact)
	if err == nil && info.Mode().IsRegular() {
		return entry, true
	}
	Logger().Info("dropping stale cache entry",
		zap.String("fingerprint", fp.Short()),
		zap.String("artifact", entry.Artifact))
	delete(c.entries, fp)
	if err := c.saveLocked(); err != nil {
		Logger().Warn("failed to persist cache manifest", zap.Error(err))
	}
	return Entry{}, false
}

// Insert records a successful build and persists the manifest.
func (c *Cache) Insert(entry Entry) error {
	if entry.Fingerprint.IsZero() {
		return fmt.Errorf("refusing to cache an entry without fingerprint")
	}
	if entry.BuiltAt.IsZero() {
		entry.BuiltAt = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.entries[entry.Fingerprint]
	c.entries[entry.Fingerprint] = entry
	if err := c.saveLocked(); err != nil {
		if had {
			c.entries[entry.Fingerprint] = prev
		} else {
			delete(c.entries, entry.Fingerprint)
		}
		return err
	}
	return nil
}

// Entries returns all entries ordered by build time, newest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BuiltAt.Equal(out[j].BuiltAt) {
			return out[i].BuiltAt.After(out[j].BuiltAt)
		}
		return out[i].Fingerprint.Hex() < out[j].Fingerprint.Hex()
	})
	return out
}

var removeAll = os.RemoveAll

// Remove deletes the artifact directory of fp, then its entry. The entry is
// kept when the directory cannot be removed.
func (c *Cache) Remove(fp project.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[fp]; !ok {
		return nil
	}
	if err := removeAll(c.ArtifactDir(fp)); err != nil {
		return fmt.Errorf("failed to remove artifact %s: %w", fp.Short(), err)
	}
	delete(c.entries, fp)
	return c.saveLocked()
}

// Clear drops every entry, artifact and scratch directory.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[project.Digest]Entry)
	for _, sub := range []string{artifactsDir, workDir} {
		if err := os.RemoveAll(filepath.Join(c.dir, sub)); err != nil {
			return err
		}
	}
	return c.saveLocked()
}

func (c *Cache) manifestPath() string {
	return filepath.Join(c.dir, manifestFile)
}

func (c *Cache) load() {
	p := c.manifestPath()
	// #nosec G304 -- path is derived from the cache directory
	f, err := os.Open(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Logger().Warn("cache manifest unreadable; starting empty", zap.String("path", p), zap.Error(err))
		}
		return
	}
	defer func() {
		_ = f.Close()
	}()

	var m manifest
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		Logger().Warn("cache manifest malformed; starting empty", zap.String("path", p), zap.Error(err))
		return
	}
	if m.Schema != manifestSchemaVersion {
		Logger().Info("cache manifest schema changed; starting empty",
			zap.Uint16("found", m.Schema),
			zap.Uint16("want", manifestSchemaVersion))
		return
	}
	for _, e := range m.Entries {
		if e.Fingerprint.IsZero() || e.Artifact == "" {
			continue
		}
		c.entries[e.Fingerprint] = Entry{
			Fingerprint: e.Fingerprint,
			Artifact:    e.Artifact,
			BuiltAt:     time.Unix(0, e.BuiltAt),
			Module:      e.Module,
			Source:      e.Source,
		}
	}
}

func (c *Cache) saveLocked() error {
	m := manifest{
		Schema:  manifestSchemaVersion,
		Entries: make([]manifestEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		m.Entries = append(m.Entries, manifestEntry{
			Fingerprint: e.Fingerprint,
			Artifact:    e.Artifact,
			BuiltAt:     e.BuiltAt.UnixNano(),
			Module:      e.Module,
			Source:      e.Source,
		})
	}
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].Fingerprint.Hex() < m.Entries[j].Fingerprint.Hex()
	})

	f, err := os.CreateTemp(c.dir, "manifest-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if _, statErr := os.Stat(tmp); statErr == nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(&m); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// atomic replace
	return os.Rename(tmp, c.manifestPath())
}
