// Package testutil provides testing utilities for datasource.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded, reproducible generators for binary and textual
// content.
//
// # Content Generation
//
//	rng := testutil.NewRNG(seed)
//	raw := rng.Bytes(1 << 20)    // incompressible binary content
//	text := rng.Lines(1000, 80)  // compressible line-oriented text
//
// Generators are deterministic for a given seed, so failing runs
// reproduce exactly.
package testutil
