package datasource

import (
	"context"
	"fmt"
	"io"
)

// Source is a uniform view over a content origin: a disk file, an
// in-memory buffer, an object-store key, or generated data. Callers
// obtain handles in text or binary mode without knowing where the bytes
// live.
//
// Both modes expose the same underlying content. Text handles traffic in
// UTF-8 strings; bytes handles in raw bytes. Whether a source accepts
// writable handles is a property of the source, not the caller.
type Source interface {
	// OpenText returns a text-mode handle on the content. Requesting a
	// writable handle from an immutable source fails with ErrImmutable
	// before any I/O happens.
	OpenText(ctx context.Context, writable bool) (TextHandle, error)

	// OpenBytes returns a binary-mode handle on the content, with the
	// same mutability rules as OpenText.
	OpenBytes(ctx context.Context, writable bool) (BytesHandle, error)

	// Path reports the filesystem path of the content when it natively
	// lives on disk. Sources without a real path report ok == false;
	// callers that need a file regardless can use Spool.
	Path() (path string, ok bool)
}

// Handle is the common surface of open content handles. Errors reports
// the failure kinds operations on the open handle may produce, fixed at
// open time.
type Handle interface {
	io.Closer

	// Errors returns the declared failure kinds of this handle.
	Errors() ErrorSet
}

// TextHandle is a seekable text-mode handle. Read returns UTF-8 bytes of
// the decoded text; Write and WriteString accept UTF-8 input. Writes on
// read-only handles fail with ErrReadOnly.
type TextHandle interface {
	Handle
	io.Reader
	io.Writer
	io.StringWriter
	io.Seeker
}

// BytesHandle is a seekable binary-mode handle. Writes on read-only
// handles fail with ErrReadOnly.
type BytesHandle interface {
	Handle
	io.Reader
	io.Writer
	io.Seeker
}

// HandleKind distinguishes text and binary handles in logs and metrics.
type HandleKind uint8

const (
	// HandleText marks a text-mode handle.
	HandleText HandleKind = iota
	// HandleBytes marks a binary-mode handle.
	HandleBytes
)

func (k HandleKind) String() string {
	switch k {
	case HandleText:
		return "text"
	case HandleBytes:
		return "bytes"
	default:
		return fmt.Sprintf("HandleKind(%d)", uint8(k))
	}
}

// UnimplementedSource can be embedded to satisfy Source while leaving
// operations unimplemented. All opens fail with ErrNotImplemented and
// Path reports no path.
type UnimplementedSource struct{}

func (UnimplementedSource) OpenText(context.Context, bool) (TextHandle, error) {
	return nil, fmt.Errorf("datasource: open text: %w", ErrNotImplemented)
}

func (UnimplementedSource) OpenBytes(context.Context, bool) (BytesHandle, error) {
	return nil, fmt.Errorf("datasource: open bytes: %w", ErrNotImplemented)
}

func (UnimplementedSource) Path() (string, bool) { return "", false }

var _ Source = UnimplementedSource{}
