// Package datasource provides a uniform Source abstraction over content
// that lives on disk, in memory, behind a generator function, or in an
// object store.
//
// A Source describes where content lives and whether it may change; a
// handle gives positioned access to that content as text (UTF-8) or raw
// bytes. Callers write against the Source interface and stay agnostic of
// the backing store.
//
// # Quick Start
//
// Local file:
//
//	src := datasource.NewLocal("/var/lib/app/notes.txt", true)
//	h, _ := src.OpenText(ctx, false)
//	data, _ := io.ReadAll(h)
//	h.Close()
//
// In-memory content:
//
//	src := datasource.NewText("héllo", true)
//	src := datasource.NewBytes(raw, false)
//
// Generated content:
//
//	src := datasource.NewFunc(func(ctx context.Context) (io.ReadCloser, error) {
//	    return report.Render(ctx)
//	})
//	src := datasource.NewValue(cfg, nil) // marshals cfg on every open
//
// Object stores live in the s3 and minio subpackages; the compress
// subpackage decorates any source with transparent zstd or LZ4 framing.
//
// # Writable Handles and the Commit Model
//
// Writable handles buffer all writes and start positioned at 0, so
// writing over existing content overwrites from the start and keeps the
// tail:
//
//	h, _ := src.OpenText(ctx, true) // content "foonani"
//	h.WriteString("dar")
//	h.Close()                       // content now "darnani"
//
// Nothing reaches the backing store until the first Close, which hands
// the full buffer to the store in one commit. A second Close returns
// ErrClosed and never commits again. Sources that cannot accept writes
// reject writable opens with ErrImmutable before touching storage.
//
// # Declared Error Kinds
//
// Every handle declares the failure kinds its operations may produce:
//
//	h.Errors()                // e.g. storage|contract
//	datasource.KindOf(err)    // classify any handle failure
//
// Callers branch on kinds (contract, storage, capacity, encoding)
// instead of matching error strings; errors.Is and errors.As keep
// working for the underlying causes.
//
// # Character Encodings
//
// Text handles are UTF-8. A source opened with WithEncoding("latin1")
// decodes stored bytes through the named IANA encoding on read and
// encodes text back to it on commit, so the stored form stays in the
// declared charset.
//
// # Resource Limits
//
// A resource.Controller caps buffered memory, bounds concurrent
// transfers, and throttles bulk IO:
//
//	ctrl := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   256 << 20,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	src := datasource.NewBytes(big, true, datasource.WithController(ctrl))
//
// # Key Features
//
//   - One Source interface over disk, memory, generated, and object-store content
//   - Buffered writable handles with one-shot close-time commits
//   - Declared per-handle error kinds instead of error-string matching
//   - Forced character encodings with exact stored byte sequences
//   - Chunked Transfer, fan-out Mirror, and Spool helpers
//   - Memory-mapped read handles for large local files
//   - Optional memory, transfer, and IO budgets
package datasource
