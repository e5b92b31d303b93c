package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/datasource/resource"
)

// DefaultTransferChunkSize is the read/write chunk for Transfer.
const DefaultTransferChunkSize = 64 * 1024

// TransferOptions configures Transfer and Mirror.
type TransferOptions struct {
	// ChunkSize is the size of each read/write chunk.
	// Default: DefaultTransferChunkSize.
	ChunkSize int

	// Controller throttles the copy through its IO budget and, for
	// Mirror, caps concurrent destinations through its transfer slots.
	Controller *resource.Controller

	// Progress, if set, is called after every written chunk with the
	// total bytes copied so far.
	Progress func(copied int64)

	// Logger receives transfer completion and failure events.
	Logger *Logger

	// Metrics receives a RecordTransfer call per copy.
	Metrics MetricsCollector
}

func applyTransferOptions(optFns []func(*TransferOptions)) TransferOptions {
	o := TransferOptions{
		ChunkSize: DefaultTransferChunkSize,
		Logger:    NoopLogger(),
		Metrics:   NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.ChunkSize < 1 {
		o.ChunkSize = DefaultTransferChunkSize
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetricsCollector{}
	}
	return o
}

// Transfer copies src to dst in chunks until src is exhausted and
// returns the number of bytes copied. It interacts with both sides only
// through Read and Write: data lands at dst's current position, src is
// left at EOF, and neither side is flushed or closed. The copy is
// forward-only; on error there is no rewind or retry.
func Transfer(ctx context.Context, dst io.Writer, src io.Reader, optFns ...func(*TransferOptions)) (copied int64, err error) {
	o := applyTransferOptions(optFns)

	start := time.Now()
	defer func() {
		o.Metrics.RecordTransfer(copied, time.Since(start), err)
		o.Logger.LogTransfer(ctx, copied, time.Since(start), err)
	}()

	buf := make([]byte, o.ChunkSize)
	for {
		if err = ctx.Err(); err != nil {
			return copied, fmt.Errorf("datasource: transfer: %w", err)
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if err = o.Controller.AcquireIO(ctx, n); err != nil {
				return copied, fmt.Errorf("datasource: transfer: %w", err)
			}

			w, werr := dst.Write(buf[:n])
			copied += int64(w)
			if werr != nil {
				err = fmt.Errorf("datasource: transfer: %w", werr)
				return copied, err
			}
			if w < n {
				err = fmt.Errorf("datasource: transfer: %w", io.ErrShortWrite)
				return copied, err
			}
			if o.Progress != nil {
				o.Progress(copied)
			}
		}

		if rerr == io.EOF {
			return copied, nil
		}
		if rerr != nil {
			err = fmt.Errorf("datasource: transfer: %w", rerr)
			return copied, err
		}
	}
}

// Mirror reads src once and commits its content to every destination
// concurrently. Destinations whose handles support truncation end up
// with exactly the source content; on others a longer previous content
// keeps its tail, as with any overwriting handle. The first failing
// destination cancels the rest; when a controller with transfer slots is
// configured, at most that many destinations are written at a time.
func Mirror(ctx context.Context, src Source, dsts []Source, optFns ...func(*TransferOptions)) error {
	o := applyTransferOptions(optFns)

	h, err := src.OpenBytes(ctx, false)
	if err != nil {
		return fmt.Errorf("datasource: mirror: %w", err)
	}
	data, err := io.ReadAll(h)
	if cerr := h.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("datasource: mirror: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, dst := range dsts {
		dst := dst
		g.Go(func() error {
			if o.Controller != nil {
				if err := o.Controller.AcquireTransfer(gctx); err != nil {
					return fmt.Errorf("datasource: mirror: %w", err)
				}
				defer o.Controller.ReleaseTransfer()
			}

			w, err := dst.OpenBytes(gctx, true)
			if err != nil {
				return fmt.Errorf("datasource: mirror: %w", err)
			}
			if _, err := Transfer(gctx, w, bytes.NewReader(data), optFns...); err != nil {
				w.Close()
				return err
			}
			if tr, ok := w.(interface{ Truncate(size int64) error }); ok {
				if err := tr.Truncate(int64(len(data))); err != nil {
					w.Close()
					return fmt.Errorf("datasource: mirror: %w", err)
				}
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("datasource: mirror: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Spool materializes src into a fresh file under dir (or the system temp
// directory when dir is empty) and returns its path with a cleanup
// function that removes the file. The spooled file is a private copy;
// sources that already live on disk report their real path through
// Path, which callers may prefer to check first.
func Spool(ctx context.Context, src Source, dir string) (path string, cleanup func() error, err error) {
	h, err := src.OpenBytes(ctx, false)
	if err != nil {
		return "", nil, fmt.Errorf("datasource: spool: %w", err)
	}
	defer h.Close()

	f, err := os.CreateTemp(dir, "datasource-*.spool")
	if err != nil {
		return "", nil, fmt.Errorf("datasource: spool: %w", err)
	}

	if _, err := Transfer(ctx, f, h); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("datasource: spool: %w", err)
	}

	name := f.Name()
	return name, func() error { return os.Remove(name) }, nil
}
