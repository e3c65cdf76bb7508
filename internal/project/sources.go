// Package project resolves and fingerprints the sources a model is built from.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"

	"hdlbind/internal/errors"
)

// SourceFile is one resolved HDL source with the hash of its contents.
type SourceFile struct {
	Path string
	Hash Digest
}

// NormalizePath makes path absolute, resolves symlinks, cleans it and puts it
// in Unicode NFC form, so that two spellings of the same file agree.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(filepath.Clean(resolved)), nil
}

// ResolveSources normalizes and hashes the module's own source file together
// with the workspace-wide sources it may depend on. The result is
// deduplicated and sorted by path; the normalized primary path is returned
// separately.
func ResolveSources(module, primary string, extra []string) ([]SourceFile, string, error) {
	missing := func(path string, cause error) error {
		return errors.New(errors.PhaseBuild, errors.KindSourceMissing).
			Module(module).
			Detail("source file %s does not exist or is not a file; relative paths are resolved against the working directory", path).
			Cause(cause).
			Build()
	}

	primaryPath, err := NormalizePath(primary)
	if err != nil {
		return nil, "", missing(primary, err)
	}

	seen := make(map[string]struct{}, len(extra)+1)
	paths := []string{primaryPath}
	seen[primaryPath] = struct{}{}
	for _, p := range extra {
		normalized, err := NormalizePath(p)
		if err != nil {
			return nil, "", missing(p, err)
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		paths = append(paths, normalized)
	}
	sort.Strings(paths)

	files := make([]SourceFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, "", missing(p, err)
		}
		if info.IsDir() {
			return nil, "", missing(p, nil)
		}
		// #nosec G304 -- paths come from the module description and workspace config
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, "", missing(p, err)
		}
		files = append(files, SourceFile{Path: p, Hash: HashBytes(data)})
	}
	return files, primaryPath, nil
}
