package datasource

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/datasource/codec"
)

func TestFuncSource_Read(t *testing.T) {
	var calls int
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		calls++
		return io.NopCloser(strings.NewReader("generated")), nil
	})

	_, ok := src.Path()
	assert.False(t, ok)

	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "generated", string(got))
	assert.Equal(t, 1, calls)

	// Handles are spooled, so rewinding does not rerun the generator.
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got, err = io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "generated", string(got))
	assert.Equal(t, 1, calls)

	// A second handle does.
	h2, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, h2.Close())
	assert.Equal(t, 2, calls)
}

func TestFuncSource_Immutable(t *testing.T) {
	var calls int
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		calls++
		return io.NopCloser(strings.NewReader("x")), nil
	})

	_, err := src.OpenText(context.Background(), true)
	require.ErrorIs(t, err, ErrImmutable)
	_, err = src.OpenBytes(context.Background(), true)
	require.ErrorIs(t, err, ErrImmutable)

	// The refusal happens before the generator runs.
	assert.Equal(t, 0, calls)
}

func TestFuncSource_GeneratorFailure(t *testing.T) {
	boom := errors.New("backend exploded")
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		return nil, boom
	})

	_, err := src.OpenBytes(context.Background(), false)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestFuncSource_TextValidatesUTF8(t *testing.T) {
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("\xff\xfe")), nil
	})

	_, err := src.OpenText(context.Background(), false)
	require.Error(t, err)

	var encErr *EncodingError
	assert.ErrorAs(t, err, &encErr)

	// The same content is fine as bytes.
	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe}, got)
}

func TestFuncSource_ForcedEncoding(t *testing.T) {
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		// "héllo" in latin1.
		return io.NopCloser(strings.NewReader("h\xe9llo")), nil
	}, WithEncoding("latin1"))

	h, err := src.OpenText(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "héllo", string(got))
}

func TestFuncSource_ReadOnlyWrites(t *testing.T) {
	src := NewFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})

	h, err := src.OpenText(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteString("y")
	require.ErrorIs(t, err, ErrReadOnly)
	assert.True(t, h.Errors().Has(KindContract))
}

func TestNewValue(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	src := NewValue(payload{Name: "a", Count: 1}, codec.JSON{})

	h, err := src.OpenText(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","count":1}`, string(got))
}

func TestNewValue_DefaultCodec(t *testing.T) {
	src := NewValue(map[string]int{"n": 7}, nil)

	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":7}`, string(got))
}

func TestNewValue_EncodesAtOpenTime(t *testing.T) {
	v := map[string]int{"n": 1}
	src := NewValue(v, codec.JSON{})

	h, err := src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	first, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	v["n"] = 2

	h, err = src.OpenBytes(context.Background(), false)
	require.NoError(t, err)
	second, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.JSONEq(t, `{"n":1}`, string(first))
	assert.JSONEq(t, `{"n":2}`, string(second))
}

func TestNewValue_MarshalFailure(t *testing.T) {
	src := NewValue(func() {}, codec.JSON{})

	_, err := src.OpenBytes(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
}
