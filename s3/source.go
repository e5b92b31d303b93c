package s3

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/hupe1980/datasource"
	"github.com/hupe1980/datasource/resource"
)

// Client is the subset of the S3 API the source uses. *s3.Client
// satisfies it; unit tests substitute a mock.
type Client interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type options struct {
	client              Client
	region              string
	encoding            string
	controller          *resource.Controller
	upload              UploadConfig
	downloadConcurrency int
}

// Option configures an S3 source.
type Option func(*options)

// WithClient supplies a pre-built client, bypassing the default AWS
// configuration chain.
func WithClient(client Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithRegion overrides the region used when the default client is built.
// It has no effect together with WithClient.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithEncoding forces a character encoding for text handles, named by
// IANA label. Stored bytes are decoded on open and text is encoded back
// on commit.
func WithEncoding(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// WithController attaches a resource controller. Spooled object content
// charges the controller's memory limit for the life of the handle.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithUploadConfig overrides the upload tuning used by commits.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *options) {
		o.upload = cfg
	}
}

// WithDownloadConcurrency sets the number of concurrent ranged GETs used
// to spool the object. Zero keeps the SDK default.
func WithDownloadConcurrency(n int) Option {
	return func(o *options) {
		o.downloadConcurrency = n
	}
}

// Declared failure sets. Reads and seeks never touch the network once
// the handle is open, so storage failures only enter through the
// close-time commit of writable handles.
const (
	readOnlyErrors     = datasource.ErrorSet(datasource.KindContract | datasource.KindCapacity)
	writableErrors     = readOnlyErrors | datasource.ErrorSet(datasource.KindStorage)
	textWritableErrors = writableErrors | datasource.ErrorSet(datasource.KindEncoding)
)

// Source reads and rewrites a single S3 object. Handles spool the object
// into memory at open time; writable handles upload the full buffered
// content back to the key when closed.
type Source struct {
	client  Client
	bucket  string
	key     string
	mutable bool
	opts    options
	enc     func() (encoding.Encoding, error)
}

var _ datasource.Source = (*Source)(nil)

// New creates a source for s3://bucket/key. Unless WithClient supplies
// one, the client is built from the default AWS configuration chain
// (environment, shared config, instance metadata).
func New(ctx context.Context, bucket, key string, mutable bool, optFns ...Option) (*Source, error) {
	var o options
	o.upload = DefaultUploadConfig()
	for _, fn := range optFns {
		fn(&o)
	}

	client := o.client
	if client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("s3: load aws config: %w", err)
		}
		client = s3.NewFromConfig(cfg)
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
	return s, nil
}

func resolveEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("s3: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("s3: unsupported encoding %q", name)
	}
	return enc, nil
}

// Path implements datasource.Source. Objects have no filesystem path;
// use Spool to materialize one.
func (s *Source) Path() (string, bool) { return "", false }

// URI returns the s3://bucket/key form of the object, for logging.
func (s *Source) URI() string { return "s3://" + s.bucket + "/" + s.key }

// Bucket returns the bucket name.
func (s *Source) Bucket() string { return s.bucket }

// Key returns the object key.
func (s *Source) Key() string { return s.key }

// Mutable reports whether the source accepts writable handles.
func (s *Source) Mutable() bool { return s.mutable }

// OpenText implements datasource.Source.
func (s *Source) OpenText(ctx context.Context, writable bool) (datasource.TextHandle, error) {
	enc, err := s.enc()
	if err != nil {
		return nil, err
	}
	if writable && !s.mutable {
		return nil, fmt.Errorf("s3: open text: %w", datasource.ErrImmutable)
	}

	stored, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(enc, s.opts.encoding, stored)
	if err != nil {
		return nil, fmt.Errorf("s3: open text: %w", err)
	}

	if !writable {
		return datasource.NewBufferedHandle(ctx, s.opts.controller, text, false, readOnlyErrors, nil)
	}
	return datasource.NewBufferedHandle(ctx, s.opts.controller, text, true, textWritableErrors, s.commitText(ctx, enc))
}

// OpenBytes implements datasource.Source.
func (s *Source) OpenBytes(ctx context.Context, writable bool) (datasource.BytesHandle, error) {
	if writable && !s.mutable {
		return nil, fmt.Errorf("s3: open bytes: %w", datasource.ErrImmutable)
	}

	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if !writable {
		return datasource.NewBufferedHandle(ctx, s.opts.controller, data, false, readOnlyErrors, nil)
	}
	return datasource.NewBufferedHandle(ctx, s.opts.controller, data, true, writableErrors, s.commit(ctx))
}

// fetch checks that the object exists and spools its content. The
// existence check runs for writable opens too: a missing key is a
// storage error, never an implicit create.
func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	size, err := s.stat(ctx)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	return s.download(ctx, size)
}

func (s *Source) stat(ctx context.Context) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return 0, translateError(err)
	}
	return aws.ToInt64(head.ContentLength), nil
}

func (s *Source) download(ctx context.Context, size int64) ([]byte, error) {
	w := manager.NewWriteAtBuffer(make([]byte, 0, size))
	d := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		if s.opts.downloadConcurrency > 0 {
			d.Concurrency = s.opts.downloadConcurrency
		}
	})

	if _, err := d.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}); err != nil {
		return nil, translateError(err)
	}
	return w.Bytes(), nil
}

// commit uploads the final buffered content, using the context captured
// at open time.
func (s *Source) commit(ctx context.Context) func(data []byte) error {
	return func(data []byte) error {
		return s.put(ctx, data)
	}
}

// commitText encodes the text back to its stored charset before the
// upload. Text commits require valid UTF-8 input.
func (s *Source) commitText(ctx context.Context, enc encoding.Encoding) func(data []byte) error {
	return func(data []byte) error {
		if !utf8.Valid(data) {
			return fmt.Errorf("s3: commit: %w", datasource.NewEncodingError("utf-8", nil))
		}
		if enc != nil {
			encoded, _, err := transform.Bytes(enc.NewEncoder(), data)
			if err != nil {
				return fmt.Errorf("s3: commit: %w", datasource.NewEncodingError(s.opts.encoding, err))
			}
			data = encoded
		}
		return s.put(ctx, data)
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

// translateError maps SDK failures onto the package error surface.
// Missing keys surface both ways HeadObject and GetObject report them.
func translateError(err error) error {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return &datasource.StorageError{Backend: "s3", Err: datasource.ErrNotFound}
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return &datasource.StorageError{Backend: "s3", Err: datasource.ErrNotFound}
	}
	return &datasource.StorageError{Backend: "s3", Err: err}
}
