package compress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/hupe1980/datasource"
	"github.com/hupe1980/datasource/resource"
)

type options struct {
	encoding   string
	controller *resource.Controller
}

// Option configures a compressed source.
type Option func(*options)

// WithEncoding forces a character encoding for text handles, named by
// IANA label. It applies to the decompressed content; the compressed
// frame itself is unaffected.
func WithEncoding(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// WithController attaches a resource controller. Decompressed content is
// buffered per handle and charges the controller's memory limit.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// Source presents the decompressed view of an inner source holding a
// compressed frame. Handles buffer the decompressed content, so opening
// costs one full pass over the inner content; writable handles
// recompress and commit through the inner source when closed.
type Source struct {
	inner     datasource.Source
	algorithm Algorithm
	opts      options
	enc       func() (encoding.Encoding, error)
}

var _ datasource.Source = (*Source)(nil)

// New decorates inner with the given compression algorithm.
func New(inner datasource.Source, algorithm Algorithm, optFns ...Option) *Source {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	s := &Source{
		inner:     inner,
		algorithm: algorithm,
		opts:      o,
	}
	s.enc = sync.OnceValues(func() (encoding.Encoding, error) {
		return resolveEncoding(o.encoding)
	})
	return s
}

func resolveEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("compress: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("compress: unsupported encoding %q", name)
	}
	return enc, nil
}

// Path implements datasource.Source. The inner path holds the compressed
// frame, not this content, so no path is reported; use Spool to
// materialize the decompressed content as a file.
func (s *Source) Path() (string, bool) { return "", false }

// Algorithm returns the compression format of the inner content.
func (s *Source) Algorithm() Algorithm { return s.algorithm }

// OpenText implements datasource.Source.
func (s *Source) OpenText(ctx context.Context, writable bool) (datasource.TextHandle, error) {
	enc, err := s.enc()
	if err != nil {
		return nil, err
	}

	if !writable {
		plaintext, err := s.load(ctx, "open text")
		if err != nil {
			return nil, err
		}
		if plaintext, err = decodeText(enc, s.opts.encoding, plaintext); err != nil {
			return nil, fmt.Errorf("compress: open text: %w", err)
		}
		return datasource.NewBufferedHandle(ctx, s.opts.controller, plaintext, false, s.readOnlyErrors(), nil)
	}

	inner, plaintext, err := s.openInner(ctx, "open text")
	if err != nil {
		return nil, err
	}
	if plaintext, err = decodeText(enc, s.opts.encoding, plaintext); err != nil {
		inner.Close()
		return nil, fmt.Errorf("compress: open text: %w", err)
	}

	h, err := datasource.NewBufferedHandle(ctx, s.opts.controller, plaintext, true, s.writableErrors(), s.commitTextTo(inner, enc))
	if err != nil {
		inner.Close()
		return nil, err
	}
	return h, nil
}

// OpenBytes implements datasource.Source.
func (s *Source) OpenBytes(ctx context.Context, writable bool) (datasource.BytesHandle, error) {
	if !writable {
		plaintext, err := s.load(ctx, "open bytes")
		if err != nil {
			return nil, err
		}
		return datasource.NewBufferedHandle(ctx, s.opts.controller, plaintext, false, s.readOnlyErrors(), nil)
	}

	inner, plaintext, err := s.openInner(ctx, "open bytes")
	if err != nil {
		return nil, err
	}

	h, err := datasource.NewBufferedHandle(ctx, s.opts.controller, plaintext, true, s.writableErrors(), s.commitTo(inner))
	if err != nil {
		inner.Close()
		return nil, err
	}
	return h, nil
}

// load reads the inner content through a short-lived read handle and
// decompresses it.
func (s *Source) load(ctx context.Context, op string) ([]byte, error) {
	r, err := s.inner.OpenBytes(ctx, false)
	if err != nil {
		return nil, err
	}

	compressed, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("compress: %s: %w", op, err)
	}

	plaintext, err := decompress(s.algorithm, compressed)
	if err != nil {
		return nil, fmt.Errorf("compress: %s: %w", op, err)
	}
	return plaintext, nil
}

// openInner opens the inner writable handle that the commit will go
// through and reads the current content off it. The handle stays open
// until the compressed handle closes.
func (s *Source) openInner(ctx context.Context, op string) (datasource.BytesHandle, []byte, error) {
	inner, err := s.inner.OpenBytes(ctx, true)
	if err != nil {
		return nil, nil, err
	}

	compressed, err := io.ReadAll(inner)
	if err != nil {
		inner.Close()
		return nil, nil, fmt.Errorf("compress: %s: %w", op, err)
	}

	plaintext, err := decompress(s.algorithm, compressed)
	if err != nil {
		inner.Close()
		return nil, nil, fmt.Errorf("compress: %s: %w", op, err)
	}
	return inner, plaintext, nil
}

// commitTo recompresses the final plaintext and rewrites the inner
// content from the start, dropping any stale tail. The inner handle is
// closed in every outcome; its own close is what persists the new frame.
func (s *Source) commitTo(inner datasource.BytesHandle) func(data []byte) error {
	return func(data []byte) error {
		frame, err := compress(s.algorithm, data)
		if err != nil {
			inner.Close()
			return fmt.Errorf("compress: commit: %w", err)
		}

		if _, err := inner.Seek(0, io.SeekStart); err != nil {
			inner.Close()
			return err
		}
		if _, err := inner.Write(frame); err != nil {
			inner.Close()
			return err
		}
		if tr, ok := inner.(interface{ Truncate(size int64) error }); ok {
			if err := tr.Truncate(int64(len(frame))); err != nil {
				inner.Close()
				return err
			}
		}
		return inner.Close()
	}
}

// commitTextTo encodes the text back to its stored charset before the
// regular commit. Text commits require valid UTF-8 input.
func (s *Source) commitTextTo(inner datasource.BytesHandle, enc encoding.Encoding) func(data []byte) error {
	commit := s.commitTo(inner)
	return func(data []byte) error {
		if !utf8.Valid(data) {
			inner.Close()
			return fmt.Errorf("compress: commit: %w", datasource.NewEncodingError("utf-8", nil))
		}
		if enc != nil {
			encoded, _, err := transform.Bytes(enc.NewEncoder(), data)
			if err != nil {
				inner.Close()
				return fmt.Errorf("compress: commit: %w", datasource.NewEncodingError(s.opts.encoding, err))
			}
			data = encoded
		}
		return commit(data)
	}
}

// decodeText converts stored bytes to UTF-8 text, either through the
// forced charset or by validating that they already are UTF-8.
func decodeText(enc encoding.Encoding, name string, stored []byte) ([]byte, error) {
	if enc != nil {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), stored)
		if err != nil {
			return nil, datasource.NewEncodingError(name, err)
		}
		return decoded, nil
	}
	if !utf8.Valid(stored) {
		return nil, datasource.NewEncodingError("utf-8", nil)
	}
	return stored, nil
}

func (s *Source) readOnlyErrors() datasource.ErrorSet {
	return datasource.ErrorSet(datasource.KindContract | datasource.KindCapacity)
}

// writableErrors covers the full surface: buffer misuse and growth while
// open, then storage and framing during the close-time commit.
func (s *Source) writableErrors() datasource.ErrorSet {
	return datasource.ErrorSet(datasource.KindContract | datasource.KindCapacity | datasource.KindStorage | datasource.KindEncoding)
}
