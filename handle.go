package datasource

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/datasource/internal/membuf"
	"github.com/hupe1980/datasource/resource"
)

// BufferedHandle is a handle over content spooled in memory. It backs
// writable handles of every source kind (memory, disk spools, object
// stores, compressed views) and the read side of spooled sources; custom
// Source implementations can reuse it through NewBufferedHandle.
//
// Writable handles buffer all writes, starting at position 0 so writes
// overwrite existing content. The first Close hands the full buffer
// contents, regardless of the position at close time, to the commit
// callback; the callback runs at most once.
type BufferedHandle struct {
	mu       sync.Mutex
	buf      *membuf.Buffer
	errs     ErrorSet
	writable bool
	closed   bool
	commit   func(data []byte) error
}

var (
	_ TextHandle  = (*BufferedHandle)(nil)
	_ BytesHandle = (*BufferedHandle)(nil)
)

// NewBufferedHandle creates a handle whose buffer is seeded with preload
// and positioned at 0. The buffer charges ctrl when one is given; a nil
// ctrl imposes no limit. Writable handles hand the full buffer to commit
// on their first Close; read-only handles pass a nil commit.
func NewBufferedHandle(ctx context.Context, ctrl *resource.Controller, preload []byte, writable bool, errs ErrorSet, commit func(data []byte) error) (*BufferedHandle, error) {
	buf, err := membuf.NewFrom(ctx, ctrl, preload)
	if err != nil {
		return nil, err
	}
	return &BufferedHandle{
		buf:      buf,
		errs:     errs,
		writable: writable,
		commit:   commit,
	}, nil
}

func (h *BufferedHandle) Errors() ErrorSet { return h.errs }

func (h *BufferedHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: read: %w", ErrClosed)
	}
	return h.buf.Read(p)
}

func (h *BufferedHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: write: %w", ErrClosed)
	}
	if !h.writable {
		return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
	}

	n, err := h.buf.Write(p)
	return n, translateBufferError("write", err)
}

func (h *BufferedHandle) WriteString(s string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: write: %w", ErrClosed)
	}
	if !h.writable {
		return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
	}

	n, err := h.buf.WriteString(s)
	return n, translateBufferError("write", err)
}

func (h *BufferedHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: seek: %w", ErrClosed)
	}

	pos, err := h.buf.Seek(offset, whence)
	return pos, translateBufferError("seek", err)
}

// Truncate changes the buffered length without moving the position.
// Callers that shorten content use it to drop the stale tail an
// overwrite leaves behind.
func (h *BufferedHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("datasource: truncate: %w", ErrClosed)
	}
	if !h.writable {
		return fmt.Errorf("datasource: truncate: %w", ErrReadOnly)
	}
	return translateBufferError("truncate", h.buf.Truncate(size))
}

// Close commits buffered content (writable handles) and releases the
// buffer. Closing again returns ErrClosed and never recommits.
func (h *BufferedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.closed = true

	var err error
	if h.commit != nil {
		err = h.commit(h.buf.Bytes())
		h.commit = nil
	}
	h.buf.Free()
	return err
}

// StreamHandle is a read-only handle over a seekable stream, used for
// memory-mapped files and natively seekable remote objects.
type StreamHandle struct {
	mu     sync.Mutex
	r      io.ReadSeeker
	c      io.Closer // optional, closed alongside the handle
	errs   ErrorSet
	closed bool
}

var (
	_ TextHandle  = (*StreamHandle)(nil)
	_ BytesHandle = (*StreamHandle)(nil)
)

// NewStreamHandle creates a read-only handle over r. closer, when
// non-nil, is closed together with the handle.
func NewStreamHandle(r io.ReadSeeker, closer io.Closer, errs ErrorSet) *StreamHandle {
	return &StreamHandle{r: r, c: closer, errs: errs}
}

func (h *StreamHandle) Errors() ErrorSet { return h.errs }

func (h *StreamHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: read: %w", ErrClosed)
	}
	return h.r.Read(p)
}

func (h *StreamHandle) Write([]byte) (int, error) {
	return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
}

func (h *StreamHandle) WriteString(string) (int, error) {
	return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
}

func (h *StreamHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: seek: %w", ErrClosed)
	}
	return h.r.Seek(offset, whence)
}

func (h *StreamHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.closed = true

	if h.c != nil {
		return h.c.Close()
	}
	return nil
}
