package datasource

import (
	"log/slog"

	"github.com/hupe1980/datasource/internal/fs"
	"github.com/hupe1980/datasource/resource"
)

// DefaultBufferSize is the read buffering window for disk-backed handles.
const DefaultBufferSize = 32 * 1024

type options struct {
	encoding   string
	bufferSize int
	mmap       bool
	fs         fs.FileSystem
	controller *resource.Controller
	logger     *Logger
	metrics    MetricsCollector
}

// Option configures a source constructor. Options that do not apply to a
// given source kind are ignored by it; each option documents where it
// takes effect.
type Option func(*options)

// WithEncoding forces a character encoding for text handles, named by
// IANA label (e.g. "latin1", "utf-16le"). Text written through a writable
// handle lands in the backing store as that exact encoded byte sequence.
// Applies to disk, object-store, and generated sources; in-memory sources
// always hold native text.
//
// Unknown labels surface as an error when the first text handle opens.
func WithEncoding(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// WithBufferSize overrides the read buffering window of disk-backed
// handles. Values below 1 fall back to DefaultBufferSize.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size < 1 {
			size = DefaultBufferSize
		}
		o.bufferSize = size
	}
}

// WithMmap serves read-only binary handles of disk sources from a
// memory mapping instead of buffered reads. Writable and text handles
// are unaffected.
func WithMmap() Option {
	return func(o *options) {
		o.mmap = true
	}
}

// WithController attaches a resource controller. Buffered handles charge
// their growth against its memory limit, and spooling transfers draw from
// its IO budget.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithLogger configures structured logging for open, commit, and
// transfer operations.
//
// If nil is passed, logging stays disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Shorthand for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for source
// operations.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// withFileSystem swaps the filesystem seam of disk sources. Used by tests
// to inject fault behavior.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		bufferSize: DefaultBufferSize,
		fs:         fs.Default,
		logger:     NoopLogger(),
		metrics:    NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
