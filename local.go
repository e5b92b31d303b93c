package datasource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/hupe1980/datasource/internal/fs"
	"github.com/hupe1980/datasource/internal/mmap"
)

// LocalSource serves content from a file on disk. Handles open the file
// directly: read-only handles buffer reads through a fixed window
// (DefaultBufferSize unless overridden), writable handles write through
// and overwrite the file in place starting at position 0, without
// implicit truncation.
//
// A forced character encoding (WithEncoding) applies to text handles
// only; bytes handles always see the raw file.
type LocalSource struct {
	path    string
	mutable bool
	opts    options
	enc     func() (encoding.Encoding, error)
}

var _ Source = (*LocalSource)(nil)

// NewLocal creates a disk-backed source for path. The file itself is not
// touched until a handle opens; a missing file surfaces then, regardless
// of mode, as a storage error matching ErrNotFound.
func NewLocal(path string, mutable bool, optFns ...Option) *LocalSource {
	o := applyOptions(optFns)
	s := &LocalSource{
		path:    path,
		mutable: mutable,
		opts:    o,
	}
	s.enc = sync.OnceValues(func() (encoding.Encoding, error) {
		return resolveEncoding(o.encoding)
	})
	return s
}

// resolveEncoding maps an IANA charset label to its encoding. An empty
// name means native UTF-8 text and resolves to nil.
func resolveEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("datasource: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("datasource: unsupported encoding %q", name)
	}
	return enc, nil
}

// Path implements Source.
func (s *LocalSource) Path() (string, bool) { return s.path, true }

// Mutable reports whether the source accepts writable handles.
func (s *LocalSource) Mutable() bool { return s.mutable }

// OpenText implements Source.
func (s *LocalSource) OpenText(ctx context.Context, writable bool) (h TextHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleText, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleText, writable, err)
	}()

	enc, err := s.enc()
	if err != nil {
		return nil, err
	}

	fh, err := s.openFile(ctx, "open text", writable, enc != nil)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return fh, nil
	}

	eh := &encodedHandle{
		base:     fh,
		enc:      enc,
		name:     s.opts.encoding,
		writable: writable,
		errs:     fh.errs | ErrorSet(KindEncoding|KindContract),
	}
	eh.reset()
	return eh, nil
}

// OpenBytes implements Source.
func (s *LocalSource) OpenBytes(ctx context.Context, writable bool) (h BytesHandle, err error) {
	start := time.Now()
	defer func() {
		s.opts.metrics.RecordOpen(HandleBytes, writable, time.Since(start), err)
		s.log().LogOpen(ctx, HandleBytes, writable, err)
	}()

	if !writable && s.opts.mmap {
		return s.openMapped(ctx)
	}
	return s.openFile(ctx, "open bytes", writable, false)
}

// openFile opens the backing file and wraps it in a buffered handle.
// The immutability check runs before the filesystem is touched.
func (s *LocalSource) openFile(ctx context.Context, op string, writable, encoded bool) (*fileHandle, error) {
	if writable && !s.mutable {
		return nil, fmt.Errorf("datasource: %s: %w", op, ErrImmutable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, err)
	}

	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := s.opts.fs.OpenFile(s.path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("datasource: %s: %w", op, err)
	}

	errs := ErrorSet(KindStorage)
	if !writable {
		errs |= ErrorSet(KindContract)
	}
	if encoded {
		errs |= ErrorSet(KindEncoding)
	}

	return &fileHandle{
		f:        f,
		br:       bufio.NewReaderSize(f, s.opts.bufferSize),
		writable: writable,
		errs:     errs,
		commit:   s.commitFunc(ctx),
	}, nil
}

// openMapped serves a read-only bytes handle from a memory mapping.
func (s *LocalSource) openMapped(ctx context.Context) (BytesHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("datasource: open bytes: %w", err)
	}
	if _, err := s.opts.fs.Stat(s.path); err != nil {
		return nil, fmt.Errorf("datasource: open bytes: %w", err)
	}

	m, err := mmap.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("datasource: open bytes: %w", err)
	}
	// Content handles read front to back far more often than they jump.
	_ = m.Advise(mmap.AccessSequential)

	return &StreamHandle{
		r:    m.Reader(),
		c:    m,
		errs: ErrorSet(KindStorage | KindContract),
	}, nil
}

// commitFunc reports the close of a writable handle to metrics and logs.
func (s *LocalSource) commitFunc(ctx context.Context) func(written int64, d time.Duration, err error) {
	return func(written int64, d time.Duration, err error) {
		s.opts.metrics.RecordCommit(written, d, err)
		s.log().WithPath(s.path).LogCommit(ctx, written, d, err)
	}
}

func (s *LocalSource) log() *Logger {
	return s.opts.logger.WithOrigin("local")
}

// fileHandle is a handle over an open file. Reads go through a buffering
// window; writes go straight to the file and discard buffered read-ahead
// so the logical position stays consistent.
type fileHandle struct {
	mu       sync.Mutex
	f        fs.File
	br       *bufio.Reader
	writable bool
	errs     ErrorSet
	closed   bool
	written  int64
	commit   func(written int64, d time.Duration, err error)
}

var (
	_ TextHandle  = (*fileHandle)(nil)
	_ BytesHandle = (*fileHandle)(nil)
)

func (h *fileHandle) Errors() ErrorSet { return h.errs }

func (h *fileHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: read: %w", ErrClosed)
	}
	return h.br.Read(p)
}

func (h *fileHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write(p)
}

func (h *fileHandle) WriteString(s string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write([]byte(s))
}

func (h *fileHandle) write(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("datasource: write: %w", ErrClosed)
	}
	if !h.writable {
		return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
	}

	if err := h.discardReadAhead(); err != nil {
		return 0, fmt.Errorf("datasource: write: %w", err)
	}

	n, err := h.f.Write(p)
	h.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("datasource: write: %w", err)
	}
	return n, nil
}

// discardReadAhead rewinds the file past bytes the read buffer consumed
// ahead of the logical position, then drops the buffer.
func (h *fileHandle) discardReadAhead() error {
	if h.br.Buffered() == 0 {
		return nil
	}
	if _, err := h.f.Seek(-int64(h.br.Buffered()), io.SeekCurrent); err != nil {
		return err
	}
	h.br.Reset(h.f)
	return nil
}

func (h *fileHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: seek: %w", ErrClosed)
	}

	// The file position is ahead of the logical one by the buffered
	// amount, so relative seeks adjust for it.
	if whence == io.SeekCurrent {
		offset -= int64(h.br.Buffered())
	}

	pos, err := h.f.Seek(offset, whence)
	h.br.Reset(h.f)
	if err != nil {
		return pos, fmt.Errorf("datasource: seek: %w", err)
	}
	return pos, nil
}

// Truncate changes the size of the backing file without moving the
// handle position. Writable handles overwrite in place, so callers that
// shorten content use Truncate to drop the stale tail.
func (h *fileHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("datasource: truncate: %w", ErrClosed)
	}
	if !h.writable {
		return fmt.Errorf("datasource: truncate: %w", ErrReadOnly)
	}
	if err := h.discardReadAhead(); err != nil {
		return fmt.Errorf("datasource: truncate: %w", err)
	}
	if err := h.f.Truncate(size); err != nil {
		return fmt.Errorf("datasource: truncate: %w", err)
	}
	return nil
}

// Close syncs writable handles before closing the file. The sync error
// wins over the close error; both always run.
func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.closed = true

	var firstErr error
	if h.writable {
		start := time.Now()
		if err := h.f.Sync(); err != nil {
			firstErr = fmt.Errorf("datasource: close: %w", err)
		}
		if h.commit != nil {
			h.commit(h.written, time.Since(start), firstErr)
		}
	}
	if err := h.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("datasource: close: %w", err)
	}
	return firstErr
}

// encodedHandle decorates a file handle with a character encoding. Text
// passes through a decoder on reads and an encoder on writes, so the
// file holds the exact encoded byte sequence. The only supported seek is
// a rewind to the start; stateful encodings make arbitrary offsets in
// decoded space meaningless.
type encodedHandle struct {
	mu       sync.Mutex
	base     *fileHandle
	enc      encoding.Encoding
	name     string
	writable bool
	errs     ErrorSet
	closed   bool
	dec      io.Reader
	ew       *transform.Writer
}

var _ TextHandle = (*encodedHandle)(nil)

// reset rebuilds the transform state against the base handle's current
// position. Encoders exist only on writable handles; some of them emit
// byte-order marks on flush, which a read-only handle must never do.
func (h *encodedHandle) reset() {
	h.dec = transform.NewReader(h.base, h.enc.NewDecoder())
	if h.writable {
		h.ew = transform.NewWriter(h.base, h.enc.NewEncoder())
	}
}

func (h *encodedHandle) Errors() ErrorSet { return h.errs }

func (h *encodedHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: read: %w", ErrClosed)
	}

	n, err := h.dec.Read(p)
	if err != nil && err != io.EOF {
		// Failures of the base handle pass through unchanged; whatever
		// the transform itself rejects is malformed encoded content.
		if KindOf(err) != 0 {
			return n, err
		}
		return n, fmt.Errorf("datasource: read: %w", &EncodingError{Encoding: h.name, cause: err})
	}
	return n, err
}

func (h *encodedHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write(p)
}

func (h *encodedHandle) WriteString(s string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write([]byte(s))
}

func (h *encodedHandle) write(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("datasource: write: %w", ErrClosed)
	}
	if !h.writable {
		return 0, fmt.Errorf("datasource: write: %w", ErrReadOnly)
	}

	n, err := h.ew.Write(p)
	if err != nil {
		if KindOf(err) != 0 {
			return n, err
		}
		return n, fmt.Errorf("datasource: write: %w", &EncodingError{Encoding: h.name, cause: err})
	}
	return n, nil
}

// Seek supports rewinding to the start only.
func (h *encodedHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("datasource: seek: %w", ErrClosed)
	}
	if offset != 0 || whence != io.SeekStart {
		return 0, fmt.Errorf("datasource: seek: %w", ErrRewindOnly)
	}

	if h.writable {
		if err := h.ew.Close(); err != nil {
			if KindOf(err) != 0 {
				return 0, err
			}
			return 0, fmt.Errorf("datasource: seek: %w", &EncodingError{Encoding: h.name, cause: err})
		}
	}
	pos, err := h.base.Seek(0, io.SeekStart)
	if err != nil {
		return pos, err
	}
	h.reset()
	return 0, nil
}

// Close flushes pending encoder state of writable handles, then closes
// the file. The flush error wins; the file always closes.
func (h *encodedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.closed = true

	var firstErr error
	if h.writable {
		if err := h.ew.Close(); err != nil {
			if KindOf(err) != 0 {
				firstErr = err
			} else {
				firstErr = fmt.Errorf("datasource: close: %w", &EncodingError{Encoding: h.name, cause: err})
			}
		}
	}
	if err := h.base.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
