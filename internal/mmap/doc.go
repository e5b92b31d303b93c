// Package mmap provides read-only memory-mapped file access.
//
// Memory mapping lets disk-backed sources serve reads without copying
// file contents through userspace buffers, which pays off for large
// read-mostly files opened repeatedly.
//
// # Usage
//
//	m, err := mmap.Open("content.bin")
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to file contents
//	data := m.Bytes()
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (advise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent and
// protected by atomic operations, but callers must ensure no goroutine
// touches Bytes() results after Close returns.
package mmap
