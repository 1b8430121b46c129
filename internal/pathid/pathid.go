// Package pathid derives the two stable artifacts the rest of the client
// needs from a UFS path: a hex path-id used to address a worker's
// server-side page namespace, and the per-attempt ring lookup key.
package pathid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"ufscache/internal/errs"
	"ufscache/internal/ringhash"
)

// pathPattern is the UFS path validation rule: a non-empty scheme followed
// by "://", e.g. "s3://bucket/key" or "hdfs://namenode/path".
var pathPattern = regexp.MustCompile(`^[A-Za-z0-9]+://`)

// Validate reports ErrInvalidPath if p is not a well-formed UFS URI.
func Validate(p string) error {
	if !pathPattern.MatchString(p) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidPath, p)
	}
	return nil
}

// PathID returns the stable hex digest used to key a path's server-side page
// namespace: SHA-256 of the UTF-8 path, lowercase hex. The result is stable
// for the lifetime of the process.
func PathID(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])
}

// LookupKey returns the ring lookup key for path p on attempt a (1-based).
func LookupKey(p string, a uint32) int32 {
	return ringhash.LookupKey(p, a)
}

// Hasher memoizes PathID computations behind a small LRU, since a path's
// digest is pure and frequently recomputed across successive reads of the
// same file. Safe for concurrent use.
type Hasher struct {
	cache *lru.Cache[string, string]
}

// NewHasher creates a Hasher with room for size memoized path-ids. size must
// be positive.
func NewHasher(size int) (*Hasher, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: path-id cache size must be positive", errs.ErrConfig)
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Hasher{cache: c}, nil
}

// PathID returns the memoized path-id for p, validating p first.
func (h *Hasher) PathID(p string) (string, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	if id, ok := h.cache.Get(p); ok {
		return id, nil
	}
	id := PathID(p)
	h.cache.Add(p, id)
	return id, nil
}
