// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: Represents an open file with read/write/seek/sync capabilities
//   - [FileSystem]: Abstracts the operations disk-backed sources perform
//
// # Implementations
//
//   - [LocalFS]: Production implementation using the standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Production code uses fs.Default (which is [LocalFS]); tests inject
// [FaultyFS] to exercise error paths:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("data.bin", fs.Fault{FailOnClose: true})
//	// inject ffs into the source under test
//
// This package intentionally does not take context.Context parameters.
// Local filesystem calls are fast and non-interruptible at the syscall
// level; sources with genuinely slow backends carry context themselves.
package fs
