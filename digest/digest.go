// Package digest computes content checksums over sources.
//
// Every algorithm streams, so content is never fully buffered, and Sums
// computes any number of digests in a single pass over the source.
//
// CRC32C is CRC32-Castagnoli, the variant used by object stores for
// upload integrity; Go's crc32 package accelerates it in hardware where
// available. XXH64 is a fast non-cryptographic hash suited to change
// detection; use SHA256 when the digest has to resist tampering.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/datasource"
)

// ErrUnsupported is returned for algorithms this package does not know.
var ErrUnsupported = errors.New("digest: unsupported algorithm")

// Algorithm names a supported digest algorithm.
type Algorithm string

const (
	// SHA256 is the cryptographic SHA-256 digest.
	SHA256 Algorithm = "sha256"
	// CRC32C is the CRC32-Castagnoli checksum.
	CRC32C Algorithm = "crc32c"
	// XXH64 is the 64-bit xxHash digest.
	XXH64 Algorithm = "xxh64"
)

// crc32cTable is pre-computed for the CRC32-Castagnoli polynomial.
// Computing this once avoids repeated MakeTable calls.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case CRC32C:
		return crc32.New(crc32cTable), nil
	case XXH64:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algorithm)
	}
}

// Sum opens a binary handle on src and returns the hex-encoded digest of
// its content.
func Sum(ctx context.Context, src datasource.Source, algorithm Algorithm) (string, error) {
	sums, err := Sums(ctx, src, algorithm)
	if err != nil {
		return "", err
	}
	return sums[algorithm], nil
}

// Sums computes multiple digests of src in a single pass over its
// content. Returns a map of algorithm to hex-encoded digest.
func Sums(ctx context.Context, src datasource.Source, algorithms ...Algorithm) (map[Algorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("digest: no algorithms given")
	}

	hashers := make(map[Algorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, algorithm := range algorithms {
		if _, ok := hashers[algorithm]; ok {
			continue
		}
		h, err := NewHasher(algorithm)
		if err != nil {
			return nil, err
		}
		hashers[algorithm] = h
		writers = append(writers, h)
	}

	r, err := src.OpenBytes(ctx, false)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := datasource.Transfer(ctx, io.MultiWriter(writers...), r); err != nil {
		return nil, err
	}

	results := make(map[Algorithm]string, len(hashers))
	for algorithm, h := range hashers {
		results[algorithm] = hex.EncodeToString(h.Sum(nil))
	}
	return results, nil
}

// SumReader drains r and returns the hex-encoded digest of everything it
// produced.
func SumReader(r io.Reader, algorithm Algorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the digest of src and reports whether it matches the
// expected hex-encoded value.
func Verify(ctx context.Context, src datasource.Source, algorithm Algorithm, expected string) (bool, error) {
	actual, err := Sum(ctx, src, algorithm)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
