package project

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"sort"

	"fortio.org/safecast"
)

const fingerprintSchema = "hdlbind-fingerprint/1"

// FingerprintInput lists everything a compiled artifact depends on.
type FingerprintInput struct {
	Module     string
	SourcePath string // normalized
	Sources    []SourceFile
	Shim       []byte
	Header     Digest
	Generator  uint32
	Classifier uint32
	// Toolchain holds settings that change the artifact (optimization level,
	// trace, translator arguments) as "key=value" pairs.
	Toolchain []string
}

// Fingerprint computes the build-cache key. Every field is length-prefixed so
// that adjacent fields cannot run into each other.
func Fingerprint(in *FingerprintInput) (Digest, error) {
	h := sha256.New()
	w := fieldWriter{h: h}
	w.str(fingerprintSchema)
	w.u32(in.Generator)
	w.u32(in.Classifier)
	w.str(in.Module)
	w.str(in.SourcePath)

	sources := make([]SourceFile, len(in.Sources))
	copy(sources, in.Sources)
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	w.count(len(sources))
	for _, src := range sources {
		w.str(src.Path)
		w.bytes(src.Hash[:])
	}

	w.bytes(in.Shim)
	w.bytes(in.Header[:])

	toolchain := append([]string(nil), in.Toolchain...)
	sort.Strings(toolchain)
	w.count(len(toolchain))
	for _, kv := range toolchain {
		w.str(kv)
	}

	if w.err != nil {
		return Digest{}, w.err
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

type fieldWriter struct {
	h   hash.Hash
	err error
}

func (w *fieldWriter) count(n int) {
	if w.err != nil {
		return
	}
	v, err := safecast.Conv[uint64](n)
	if err != nil {
		w.err = err
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.h.Write(buf[:])
}

func (w *fieldWriter) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = w.h.Write(buf[:])
}

func (w *fieldWriter) bytes(b []byte) {
	w.count(len(b))
	_, _ = w.h.Write(b)
}

func (w *fieldWriter) str(s string) {
	w.bytes([]byte(s))
}
