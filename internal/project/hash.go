package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a fixed 256-bit content hash.
type Digest [32]byte

// Combine folds deps into content as H(content || deps...). Callers fix the
// order of deps.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes returns the SHA-256 digest of data.
func HashBytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool {
	var z Digest
	return d == z
}

// Hex returns the lowercase hex form of d.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// Short returns the first 12 hex digits, for display.
func (d Digest) Short() string { return d.Hex()[:12] }

func (d Digest) String() string { return d.Hex() }

// ParseDigest parses the output of Digest.Hex.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("invalid digest %q: want %d bytes, got %d", s, len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}
