package datasource

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/datasource/internal/membuf"
)

// ContentKind identifies the native representation of in-memory content.
type ContentKind uint8

const (
	// ContentText marks content held natively as a string.
	ContentText ContentKind = iota
	// ContentBinary marks content held natively as raw bytes.
	ContentBinary
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentBinary:
		return "binary"
	default:
		return fmt.Sprintf("ContentKind(%d)", uint8(k))
	}
}

// MemorySource holds content in memory, natively as text or as bytes.
// Either handle mode is available regardless of the native kind; the
// conversion between the two is UTF-8 and never alters stored content.
//
// Writable handles buffer independently and replace the stored content
// when closed. Handles opened before a commit keep seeing the content
// as of their open time.
type MemorySource struct {
	mu      sync.RWMutex
	kind    ContentKind
	text    string
	data    []byte
	mutable bool
	opts    options
}

var _ Source = (*MemorySource)(nil)

// New creates an in-memory source from dynamically typed content, which
// must be a string or a []byte. Anything else fails with a
// ContentTypeError before the source exists. Use NewText or NewBytes
// when the representation is known statically.
func New(content any, mutable bool, optFns ...Option) (*MemorySource, error) {
	switch c := content.(type) {
	case string:
		return NewText(c, mutable, optFns...), nil
	case []byte:
		return NewBytes(c, mutable, optFns...), nil
	default:
		return nil, &ContentTypeError{Got: content}
	}
}

// NewText creates an in-memory source holding text content.
func NewText(content string, mutable bool, optFns ...Option) *MemorySource {
	o := applyOptions(optFns)
	return &MemorySource{
		kind:    ContentText,
		text:    content,
		mutable: mutable,
		opts:    o,
	}
}

// NewBytes creates an in-memory source holding binary content. The
// source keeps its own copy of the slice.
func NewBytes(content []byte, mutable bool, optFns ...Option) *MemorySource {
	o := applyOptions(optFns)
	cp := make([]byte, len(content))
	copy(cp, content)
	return &MemorySource{
		kind:    ContentBinary,
		data:    cp,
		mutable: mutable,
		opts:    o,
	}
}

// Kind returns the native representation of the stored content.
func (s *MemorySource) Kind() ContentKind { return s.kind }

// Mutable reports whether the source accepts writable handles.
func (s *MemorySource) Mutable() bool { return s.mutable }

// Path implements Source. In-memory content has no filesystem path.
func (s *MemorySource) Path() (string, bool) { return "", false }

// Text returns the current content as text. Binary content must be
// valid UTF-8.
func (s *MemorySource) Text() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.kind == ContentText {
		return s.text, nil
	}
	if !utf8.Valid(s.data) {
		return "", &EncodingError{Encoding: "utf-8"}
	}
	return string(s.data), nil
}

// Bytes returns a copy of the current content as bytes.
func (s *MemorySource) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.kind == ContentText {
		return []byte(s.text)
	}
	cp := make([]byte, len(s.data))
	copy(cp, s.data)
	return cp
}

// OpenText implements Source.
func (s *MemorySource) OpenText(ctx context.Context, writable bool) (h TextHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleText, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleText, writable, err)
	}()

	if !writable {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if s.kind == ContentText {
			return &StreamHandle{
				r:    strings.NewReader(s.text),
				errs: s.readOnlyErrors(),
			}, nil
		}
		if !utf8.Valid(s.data) {
			return nil, fmt.Errorf("datasource: open text: %w", &EncodingError{Encoding: "utf-8"})
		}
		return &StreamHandle{
			r:    bytes.NewReader(s.data),
			errs: s.readOnlyErrors(),
		}, nil
	}

	return s.openWritable(ctx, "open text")
}

// OpenBytes implements Source.
func (s *MemorySource) OpenBytes(ctx context.Context, writable bool) (h BytesHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleBytes, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleBytes, writable, err)
	}()

	if !writable {
		s.mu.RLock()
		defer s.mu.RUnlock()

		var r *bytes.Reader
		if s.kind == ContentText {
			r = bytes.NewReader([]byte(s.text))
		} else {
			r = bytes.NewReader(s.data)
		}
		return &StreamHandle{r: r, errs: s.readOnlyErrors()}, nil
	}

	return s.openWritable(ctx, "open bytes")
}

// openWritable builds the buffered handle shared by both modes. Its
// buffer starts with the current content, positioned at 0, so writes
// overwrite from the start. The first Close converts the full buffer
// back to the native kind and replaces the stored content; the commit
// runs exactly once.
func (s *MemorySource) openWritable(ctx context.Context, op string) (*BufferedHandle, error) {
	if !s.mutable {
		return nil, fmt.Errorf("datasource: %s: %w", op, ErrImmutable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, err)
	}

	// Snapshot outside the allocation: the memory gate may block, and a
	// pending commit must not be held up behind it. Committed content is
	// never mutated in place, so the snapshot stays stable.
	s.mu.RLock()
	var preload []byte
	if s.kind == ContentText {
		preload = []byte(s.text)
	} else {
		preload = s.data
	}
	s.mu.RUnlock()

	buf, err := membuf.NewFrom(ctx, s.opts.controller, preload)
	if err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, err)
	}

	return &BufferedHandle{
		buf:      buf,
		errs:     s.writableErrors(),
		writable: true,
		commit:   s.commitFunc(ctx),
	}, nil
}

// commitFunc wraps commit with logging and metrics for the handle that
// triggered it.
func (s *MemorySource) commitFunc(ctx context.Context) func([]byte) error {
	return func(data []byte) error {
		start := time.Now()
		err := s.commit(data)
		s.opts.metrics.RecordCommit(int64(len(data)), time.Since(start), err)
		s.log().LogCommit(ctx, int64(len(data)), time.Since(start), err)
		return err
	}
}

// commit converts committed bytes back to the native kind and replaces
// the stored content. Text-native sources require valid UTF-8.
func (s *MemorySource) commit(data []byte) error {
	switch s.kind {
	case ContentText:
		if !utf8.Valid(data) {
			return fmt.Errorf("datasource: commit: %w", &EncodingError{Encoding: "utf-8"})
		}
		s.mu.Lock()
		s.text = string(data)
		s.mu.Unlock()
	case ContentBinary:
		cp := make([]byte, len(data))
		copy(cp, data)
		s.mu.Lock()
		s.data = cp
		s.mu.Unlock()
	}
	return nil
}

func (s *MemorySource) readOnlyErrors() ErrorSet {
	return ErrorSet(KindContract | KindCapacity)
}

func (s *MemorySource) writableErrors() ErrorSet {
	errs := ErrorSet(KindContract | KindCapacity)
	if s.kind == ContentText {
		errs |= ErrorSet(KindEncoding)
	}
	return errs
}

func (s *MemorySource) log() *Logger {
	return s.opts.logger.WithOrigin("memory")
}
