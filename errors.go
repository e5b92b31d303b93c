package datasource

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/datasource/internal/membuf"
)

var (
	// ErrImmutable is returned when a writable handle is requested from an
	// immutable source. The check happens before any I/O.
	ErrImmutable = errors.New("datasource: source is immutable")

	// ErrReadOnly is returned by writes on a read-only handle.
	ErrReadOnly = errors.New("datasource: handle is read-only")

	// ErrClosed is returned by operations on a closed handle. A buffered
	// writable handle commits exactly once; closing it again returns
	// ErrClosed without recommitting.
	ErrClosed = errors.New("datasource: handle is closed")

	// ErrNotImplemented is returned by sources that do not implement an
	// operation, notably UnimplementedSource.
	ErrNotImplemented = errors.New("datasource: not implemented")

	// ErrRewindOnly is returned when an encoded text handle is asked to
	// seek anywhere but its start. Stateful encodings leave arbitrary
	// offsets in decoded space undefined.
	ErrRewindOnly = errors.New("datasource: encoded text handles only seek to start")

	// ErrCapacity is returned when buffered content would exceed the
	// configured memory limit.
	ErrCapacity = errors.New("datasource: memory limit exceeded")

	// ErrNotFound unifies "content does not exist" across backends.
	// It matches os.ErrNotExist, so existing errors.Is checks keep working.
	ErrNotFound = os.ErrNotExist
)

// ErrorKind classifies handle failures.
type ErrorKind uint8

const (
	// KindContract marks misuse of the handle API: writing to a read-only
	// handle, seeking before the start, or seeking an encoded text handle
	// anywhere but its beginning.
	KindContract ErrorKind = 1 << iota
	// KindStorage marks failures of the backing store: filesystem errors,
	// object-store errors, missing content.
	KindStorage
	// KindCapacity marks memory-limit refusals from buffered handles.
	KindCapacity
	// KindEncoding marks character-encoding conversions or compressed
	// framing that cannot represent the content.
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindContract:
		return "contract"
	case KindStorage:
		return "storage"
	case KindCapacity:
		return "capacity"
	case KindEncoding:
		return "encoding"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// ErrorSet is a bitmask of ErrorKind values. Every handle declares the
// set of failure kinds its operations may produce while the handle is
// open; callers can check a failure against the declaration instead of
// matching error strings.
type ErrorSet uint8

// Has reports whether the set contains kind.
func (s ErrorSet) Has(kind ErrorKind) bool {
	return uint8(s)&uint8(kind) != 0
}

// Kinds returns the contained kinds in declaration order.
func (s ErrorSet) Kinds() []ErrorKind {
	var kinds []ErrorKind
	for _, k := range []ErrorKind{KindContract, KindStorage, KindCapacity, KindEncoding} {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s ErrorSet) String() string {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return "none"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k.String()
	}
	return strings.Join(parts, "|")
}

// ContentTypeError indicates in-memory content of an unsupported dynamic
// type passed to New.
type ContentTypeError struct {
	Got any
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("datasource: unsupported content type %T (want string or []byte)", e.Got)
}

// EncodingError indicates content that cannot be converted to or from the
// requested representation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type EncodingError struct {
	Encoding string
	cause    error
}

// NewEncodingError creates an EncodingError for the named encoding or
// framing, wrapping cause (which may be nil).
func NewEncodingError(encoding string, cause error) *EncodingError {
	return &EncodingError{Encoding: encoding, cause: cause}
}

func (e *EncodingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("datasource: invalid %s content: %v", e.Encoding, e.cause)
	}
	return fmt.Sprintf("datasource: invalid %s content", e.Encoding)
}

func (e *EncodingError) Unwrap() error { return e.cause }

// StorageError marks a failure of a backing store. Backend names the
// store ("local", "s3", "minio"); the underlying error is available via
// errors.Unwrap.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("datasource: %s: %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KindOf classifies err into an ErrorKind, or 0 if it cannot tell.
// Combined with Handle.Errors this answers "is this failure one of the
// kinds this handle declared?" structurally.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrReadOnly),
		errors.Is(err, ErrClosed),
		errors.Is(err, ErrImmutable),
		errors.Is(err, ErrNotImplemented),
		errors.Is(err, ErrRewindOnly),
		errors.Is(err, membuf.ErrNegativeOffset):
		return KindContract
	case errors.Is(err, ErrCapacity), errors.Is(err, membuf.ErrCapacity):
		return KindCapacity
	case errors.Is(err, ErrNotFound):
		return KindStorage
	}

	var encErr *EncodingError
	if errors.As(err, &encErr) {
		return KindEncoding
	}

	var storeErr *StorageError
	if errors.As(err, &storeErr) {
		return KindStorage
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return KindStorage
	}

	return 0
}

// translateBufferError maps internal buffer failures onto the package
// sentinels so callers never see internal error values.
func translateBufferError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, membuf.ErrCapacity) {
		return fmt.Errorf("datasource: %s: %w", op, ErrCapacity)
	}
	return fmt.Errorf("datasource: %s: %w", op, err)
}
