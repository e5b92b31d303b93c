package datasource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/datasource/resource"
)

func TestTransfer(t *testing.T) {
	src := strings.NewReader("foonani")
	var dst bytes.Buffer

	n, err := Transfer(context.Background(), &dst, src)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "foonani", dst.String())
}

func TestTransfer_FromCurrentPositions(t *testing.T) {
	// The copy starts wherever both sides currently are: consumed source
	// bytes stay consumed and existing destination content stays put.
	src := strings.NewReader("foonani")
	head := make([]byte, 3)
	_, err := io.ReadFull(src, head)
	require.NoError(t, err)

	var dst bytes.Buffer
	dst.WriteString("xyz")

	n, err := Transfer(context.Background(), &dst, src)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "xyznani", dst.String())

	// The source is left at EOF.
	_, err = src.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransfer_IntoHandlePosition(t *testing.T) {
	src := NewText("foonani", true)

	h, err := src.OpenText(context.Background(), true)
	require.NoError(t, err)

	_, err = h.Seek(3, io.SeekStart)
	require.NoError(t, err)

	_, err = Transfer(context.Background(), h, strings.NewReader("Xy"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	text, err := src.Text()
	require.NoError(t, err)
	assert.Equal(t, "fooXyni", text)
}

func TestTransfer_ChunkedProgress(t *testing.T) {
	var totals []int64

	n, err := Transfer(context.Background(), io.Discard, strings.NewReader("abcdefgh"), func(o *TransferOptions) {
		o.ChunkSize = 3
		o.Progress = func(copied int64) { totals = append(totals, copied) }
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, []int64{3, 6, 8}, totals)
}

func TestTransfer_ShortWrite(t *testing.T) {
	_, err := Transfer(context.Background(), shortWriter{}, strings.NewReader("abcdef"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestTransfer_ReadError(t *testing.T) {
	boom := errors.New("read failed")

	n, err := Transfer(context.Background(), io.Discard, iotest.ErrReader(boom))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), n)
}

func TestTransfer_WriteError(t *testing.T) {
	boom := errors.New("write failed")

	_, err := Transfer(context.Background(), failWriter{err: boom}, strings.NewReader("abc"))
	assert.ErrorIs(t, err, boom)
}

func TestTransfer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Transfer(ctx, io.Discard, strings.NewReader("abc"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransfer_WithController(t *testing.T) {
	ctrl := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})

	var dst bytes.Buffer
	n, err := Transfer(context.Background(), &dst, strings.NewReader("throttled"), func(o *TransferOptions) {
		o.Controller = ctrl
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "throttled", dst.String())
}

func TestTransfer_DefaultChunkSize(t *testing.T) {
	// One progress call per chunk; content smaller than the default
	// chunk yields exactly one.
	var calls int

	data := bytes.Repeat([]byte("a"), DefaultTransferChunkSize-1)
	_, err := Transfer(context.Background(), io.Discard, bytes.NewReader(data), func(o *TransferOptions) {
		o.Progress = func(int64) { calls++ }
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMirror(t *testing.T) {
	src := NewText("mirrored", false)
	dsts := []Source{
		NewText("old-a", true),
		NewText("old-b", true),
		NewText("old-c-longer-than-source", true),
	}

	err := Mirror(context.Background(), src, dsts)
	require.NoError(t, err)

	// Truncation drops the tail of the destination that was longer than
	// the source, so every copy is exact.
	for _, d := range dsts {
		text, err := d.(*MemorySource).Text()
		require.NoError(t, err)
		assert.Equal(t, "mirrored", text)
	}
}

func TestMirror_WithTransferSlots(t *testing.T) {
	ctrl := resource.NewController(resource.Config{MaxConcurrentTransfers: 1})

	src := NewText("content", false)
	dsts := []Source{NewText("", true), NewText("", true), NewText("", true)}

	err := Mirror(context.Background(), src, dsts, func(o *TransferOptions) {
		o.Controller = ctrl
	})
	require.NoError(t, err)

	for _, d := range dsts {
		text, err := d.(*MemorySource).Text()
		require.NoError(t, err)
		assert.Equal(t, "content", text)
	}
}

func TestMirror_ImmutableDestination(t *testing.T) {
	src := NewText("content", false)
	dsts := []Source{NewText("", true), NewText("", false)}

	err := Mirror(context.Background(), src, dsts)
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestSpool(t *testing.T) {
	src := NewText("spooled content", false)

	path, cleanup, err := Spool(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "spooled content", string(got))

	require.NoError(t, cleanup())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSpool_OpenFailure(t *testing.T) {
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("no content")
	})

	_, _, err := Spool(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) - 1, nil
}

type failWriter struct{ err error }

func (w failWriter) Write([]byte) (int, error) { return 0, w.err }
