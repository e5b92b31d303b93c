package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/minio/minio-go/v7"
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

// Option configures a MinIO source.
type Option func(*options)

// WithEncoding forces a character encoding for text handles, named by
// IANA label.
func WithEncoding(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// WithController attaches a resource controller. Spooled content charges
// the memory limit, and spooling and commits draw from the IO budget.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// Declared failure sets. Streaming read handles reach the network on
// every read, so they declare storage failures; spooled handles only do
// once a writable commit uploads.
const (
	streamErrors       = datasource.ErrorSet(datasource.KindContract | datasource.KindStorage)
	spooledErrors      = datasource.ErrorSet(datasource.KindContract | datasource.KindCapacity)
	writableErrors     = spooledErrors | datasource.ErrorSet(datasource.KindStorage)
	textWritableErrors = writableErrors | datasource.ErrorSet(datasource.KindEncoding)
)

// Source reads and rewrites a single object in an S3-compatible store.
// Read-only bytes handles stream off the object directly; text handles
// and writable handles spool into memory, and writable handles upload
// the full buffered content back to the key when closed.
type Source struct {
	client  *minio.Client
	bucket  string
	key     string
	mutable bool
	opts    options
	enc     func() (encoding.Encoding, error)
}

var _ datasource.Source = (*Source)(nil)

// New creates a source for the object at bucket/key.
func New(client *minio.Client, bucket, key string, mutable bool, optFns ...Option) *Source {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	s := &Source{
		client:  client,
		bucket:  bucket,
		key:     key,
		mutable: mutable,
		opts:    o,
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
		return nil, fmt.Errorf("minio: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("minio: unsupported encoding %q", name)
	}
	return enc, nil
}

// Path implements datasource.Source. Objects have no filesystem path;
// use Spool to materialize one.
func (s *Source) Path() (string, bool) { return "", false }

// URI returns the full endpoint form of the object, for logging.
func (s *Source) URI() string {
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucket, s.key)
}

// Bucket returns the bucket name.
func (s *Source) Bucket() string { return s.bucket }

// Key returns the object key.
func (s *Source) Key() string { return s.key }

// Mutable reports whether the source accepts writable handles.
func (s *Source) Mutable() bool { return s.mutable }

// OpenText implements datasource.Source. Text handles always spool, so
// encoding validation sees the full content up front.
func (s *Source) OpenText(ctx context.Context, writable bool) (datasource.TextHandle, error) {
	enc, err := s.enc()
	if err != nil {
		return nil, err
	}
	if writable && !s.mutable {
		return nil, fmt.Errorf("minio: open text: %w", datasource.ErrImmutable)
	}

	if err := s.stat(ctx); err != nil {
		return nil, err
	}
	stored, err := s.spool(ctx)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(enc, s.opts.encoding, stored)
	if err != nil {
		return nil, fmt.Errorf("minio: open text: %w", err)
	}

	if !writable {
		return datasource.NewBufferedHandle(ctx, s.opts.controller, text, false, spooledErrors, nil)
	}
	return datasource.NewBufferedHandle(ctx, s.opts.controller, text, true, textWritableErrors, s.commitText(ctx, enc))
}

// OpenBytes implements datasource.Source. Read-only handles stream off
// the object; seeks translate to ranged reads on the store.
func (s *Source) OpenBytes(ctx context.Context, writable bool) (datasource.BytesHandle, error) {
	if writable && !s.mutable {
		return nil, fmt.Errorf("minio: open bytes: %w", datasource.ErrImmutable)
	}

	if err := s.stat(ctx); err != nil {
		return nil, err
	}

	if !writable {
		obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
		if err != nil {
			return nil, translateError(err)
		}
		return datasource.NewStreamHandle(obj, obj, streamErrors), nil
	}

	data, err := s.spool(ctx)
	if err != nil {
		return nil, err
	}
	return datasource.NewBufferedHandle(ctx, s.opts.controller, data, true, writableErrors, s.commit(ctx))
}

// stat verifies the object exists. It runs for writable opens too: a
// missing key is a storage error, never an implicit create.
func (s *Source) stat(ctx context.Context) error {
	if _, err := s.client.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{}); err != nil {
		return translateError(err)
	}
	return nil
}

// spool reads the whole object into memory, throttled by the IO budget
// when a controller is attached.
func (s *Source) spool(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}

	var r io.Reader = obj
	if s.opts.controller != nil {
		r = resource.NewRateLimitedReader(ctx, r, s.opts.controller)
	}

	data, err := io.ReadAll(r)
	if cerr := obj.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, translateError(err)
	}
	return data, nil
}

// commit uploads the final buffered content with its exact length, using
// the context captured at open time.
func (s *Source) commit(ctx context.Context) func(data []byte) error {
	return func(data []byte) error {
		var r io.Reader = bytes.NewReader(data)
		if s.opts.controller != nil {
			r = resource.NewRateLimitedReader(ctx, r, s.opts.controller)
		}

		_, err := s.client.PutObject(ctx, s.bucket, s.key, r, int64(len(data)), minio.PutObjectOptions{})
		if err != nil {
			return translateError(err)
		}
		return nil
	}
}

// commitText encodes the text back to its stored charset before the
// upload. Text commits require valid UTF-8 input.
func (s *Source) commitText(ctx context.Context, enc encoding.Encoding) func(data []byte) error {
	commit := s.commit(ctx)
	return func(data []byte) error {
		if !utf8.Valid(data) {
			return fmt.Errorf("minio: commit: %w", datasource.NewEncodingError("utf-8", nil))
		}
		if enc != nil {
			encoded, _, err := transform.Bytes(enc.NewEncoder(), data)
			if err != nil {
				return fmt.Errorf("minio: commit: %w", datasource.NewEncodingError(s.opts.encoding, err))
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

// translateError maps client failures onto the package error surface.
func translateError(err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return &datasource.StorageError{Backend: "minio", Err: datasource.ErrNotFound}
	}
	return &datasource.StorageError{Backend: "minio", Err: err}
}
