// Package membuf implements a seekable in-memory read/write buffer.
//
// Unlike bytes.Buffer, writes land at the current offset and overwrite
// existing content, matching file semantics: a handle positioned at the
// start replaces bytes instead of appending. Growth can be gated by a
// resource.Controller so in-memory sources respect a configured memory
// limit.
package membuf

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/datasource/resource"
)

var (
	// ErrCapacity is returned when a write would exceed the configured
	// memory limit.
	ErrCapacity = errors.New("membuf: memory limit exceeded")

	// ErrNegativeOffset is returned by Seek for offsets before the start.
	ErrNegativeOffset = errors.New("membuf: negative offset")
)

// Buffer is a seekable in-memory read/write buffer. It is not safe for
// concurrent use; handles guard it with their own mutex.
type Buffer struct {
	data     []byte
	off      int64
	ctrl     *resource.Controller
	reserved int64 // capacity charged against ctrl
}

// New returns an empty buffer whose growth is charged against ctrl.
// A nil controller imposes no limit.
func New(ctrl *resource.Controller) *Buffer {
	return &Buffer{ctrl: ctrl}
}

// NewFrom returns a buffer preloaded with a copy of data, positioned at 0.
// The initial allocation is charged against ctrl and may block until
// memory is available or ctx is canceled.
func NewFrom(ctx context.Context, ctrl *resource.Controller, data []byte) (*Buffer, error) {
	b := New(ctrl)
	if len(data) == 0 {
		return b, nil
	}

	if err := ctrl.AcquireMemory(ctx, int64(len(data))); err != nil {
		return nil, err
	}
	b.reserved = int64(len(data))
	b.data = make([]byte, len(data))
	copy(b.data, data)

	return b, nil
}

// Read reads up to len(p) bytes from the current offset.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= int64(len(b.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += int64(n)
	return n, nil
}

// Write writes p at the current offset, overwriting existing content and
// extending the buffer as needed. Writing past the end after a forward
// seek fills the gap with zero bytes.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	end := b.off + int64(len(p))
	if err := b.grow(end); err != nil {
		return 0, err
	}
	if end > int64(len(b.data)) {
		b.data = b.data[:end]
	}

	copy(b.data[b.off:], p)
	b.off = end
	return len(p), nil
}

// WriteString writes s at the current offset.
func (b *Buffer) WriteString(s string) (int, error) {
	end := b.off + int64(len(s))
	if err := b.grow(end); err != nil {
		return 0, err
	}
	if end > int64(len(b.data)) {
		b.data = b.data[:end]
	}

	copy(b.data[b.off:], s)
	b.off = end
	return len(s), nil
}

// Seek sets the offset for the next Read or Write.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.off + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("membuf: invalid whence")
	}
	if abs < 0 {
		return 0, ErrNegativeOffset
	}
	b.off = abs
	return abs, nil
}

// Truncate shortens or zero-extends the buffer to size. The offset is
// left unchanged. Reserved capacity is kept until Free.
func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return ErrNegativeOffset
	}
	if size <= int64(len(b.data)) {
		b.data = b.data[:size]
		return nil
	}

	if err := b.grow(size); err != nil {
		return err
	}
	old := int64(len(b.data))
	b.data = b.data[:size]
	clear(b.data[old:])
	return nil
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int64 {
	return int64(len(b.data))
}

// Bytes returns the full buffer contents regardless of the current
// offset. The slice aliases internal storage and is only valid until the
// next Write, Truncate, or Free.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// String returns the full buffer contents as a string.
func (b *Buffer) String() string {
	return string(b.data)
}

// Free releases reserved memory back to the controller and drops the
// storage. The buffer must not be used afterwards.
func (b *Buffer) Free() {
	if b.reserved > 0 {
		b.ctrl.ReleaseMemory(b.reserved)
		b.reserved = 0
	}
	b.data = nil
	b.off = 0
}

// grow ensures capacity for a buffer of length need, charging any new
// capacity against the controller without blocking.
func (b *Buffer) grow(need int64) error {
	if need <= int64(cap(b.data)) {
		// Zero-fill any gap between the current end and the offset.
		if b.off > int64(len(b.data)) {
			old := int64(len(b.data))
			b.data = b.data[:b.off]
			clear(b.data[old:])
		}
		return nil
	}

	newCap := int64(cap(b.data)) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < 64 {
		newCap = 64
	}

	if !b.ctrl.TryAcquireMemory(newCap - b.reserved) {
		return ErrCapacity
	}
	b.reserved = newCap

	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	if b.off > int64(len(grown)) {
		old := int64(len(grown))
		grown = grown[:b.off]
		clear(grown[old:])
	}
	b.data = grown
	return nil
}
