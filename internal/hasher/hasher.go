// Package hasher provides the three content-hashing primitives the rest
// of Toast builds on: a streaming hash of a reader, a hash of a string,
// and a combinator that folds two hashes into one without ambiguity.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashBytes computes a SHA-256 digest of r, hex-encoded, without loading
// the whole input into memory.
func HashBytes(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("unable to compute hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashString computes a SHA-256 digest of the UTF-8 bytes of s, hex-encoded.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Combine folds x and y into a single hash. The length of x is included
// so that Combine("foo", "bar") != Combine("foob", "ar").
func Combine(x, y string) string {
	return HashString(fmt.Sprintf("%d:%s%s", len(x), x, y))
}
