package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/hupe1980/datasource/codec"
	"github.com/hupe1980/datasource/internal/membuf"
)

// FuncSource produces content on demand by invoking a generator
// function. The generator runs once per open; its stream is drained into
// memory and closed before the handle is returned, so handles are
// seekable and independent of each other. Generated sources are always
// immutable.
type FuncSource struct {
	open func(ctx context.Context) (io.ReadCloser, error)
	opts options
	enc  func() (encoding.Encoding, error)
}

var _ Source = (*FuncSource)(nil)

// NewFunc creates a source whose content comes from the open callback.
func NewFunc(open func(ctx context.Context) (io.ReadCloser, error), optFns ...Option) *FuncSource {
	o := applyOptions(optFns)
	s := &FuncSource{
		open: open,
		opts: o,
	}
	s.enc = sync.OnceValues(func() (encoding.Encoding, error) {
		return resolveEncoding(o.encoding)
	})
	return s
}

// NewValue creates a generated source whose content is the codec
// encoding of v, produced fresh at every open. A nil codec selects
// codec.Default.
func NewValue(v any, c codec.Codec, optFns ...Option) *FuncSource {
	if c == nil {
		c = codec.Default
	}
	return NewFunc(func(context.Context) (io.ReadCloser, error) {
		data, err := c.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}, optFns...)
}

// Path implements Source.
func (s *FuncSource) Path() (string, bool) { return "", false }

// Mutable reports whether the source accepts writable handles. Generated
// content has no store to commit to, so it never does.
func (s *FuncSource) Mutable() bool { return false }

// OpenText implements Source.
func (s *FuncSource) OpenText(ctx context.Context, writable bool) (h TextHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleText, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleText, writable, err)
	}()

	enc, err := s.enc()
	if err != nil {
		return nil, err
	}

	buf, err := s.spool(ctx, "open text", writable)
	if err != nil {
		return nil, err
	}

	if enc != nil {
		decoded, _, terr := transform.Bytes(enc.NewDecoder(), buf.Bytes())
		buf.Free()
		if terr != nil {
			return nil, fmt.Errorf("datasource: open text: %w", &EncodingError{Encoding: s.opts.encoding, cause: terr})
		}
		if buf, err = membuf.NewFrom(ctx, s.opts.controller, decoded); err != nil {
			return nil, translateBufferError("open text", err)
		}
	} else if !utf8.Valid(buf.Bytes()) {
		buf.Free()
		return nil, fmt.Errorf("datasource: open text: %w", &EncodingError{Encoding: "utf-8"})
	}

	return &BufferedHandle{buf: buf, errs: s.handleErrors()}, nil
}

// OpenBytes implements Source.
func (s *FuncSource) OpenBytes(ctx context.Context, writable bool) (h BytesHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleBytes, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleBytes, writable, err)
	}()

	buf, err := s.spool(ctx, "open bytes", writable)
	if err != nil {
		return nil, err
	}
	return &BufferedHandle{buf: buf, errs: s.handleErrors()}, nil
}

// spool runs the generator and drains its stream into a fresh buffer,
// rewound to the start. The immutability check runs before the
// generator is invoked.
func (s *FuncSource) spool(ctx context.Context, op string, writable bool) (*membuf.Buffer, error) {
	if writable {
		return nil, fmt.Errorf("datasource: %s: %w", op, ErrImmutable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, err)
	}

	rc, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, &StorageError{Backend: "func", Err: err})
	}

	buf := membuf.New(s.opts.controller)
	_, err = Transfer(ctx, buf, rc, func(o *TransferOptions) {
		o.Controller = s.opts.controller
	})
	if cerr := rc.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("datasource: %s: %w", op, &StorageError{Backend: "func", Err: cerr})
	}
	if err != nil {
		buf.Free()
		if errors.Is(err, membuf.ErrCapacity) {
			return nil, fmt.Errorf("datasource: %s: %w", op, ErrCapacity)
		}
		return nil, err
	}

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		buf.Free()
		return nil, translateBufferError(op, err)
	}
	return buf, nil
}

func (s *FuncSource) handleErrors() ErrorSet {
	return ErrorSet(KindContract | KindCapacity)
}

func (s *FuncSource) log() *Logger {
	return s.opts.logger.WithOrigin("func")
}
