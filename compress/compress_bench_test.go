package compress

import (
	"context"
	"io"
	"testing"

	"github.com/hupe1980/datasource"
	"github.com/hupe1980/datasource/testutil"
)

func seedFrame(b *testing.B, algorithm Algorithm, plaintext []byte) datasource.Source {
	b.Helper()

	inner := datasource.NewBytes(nil, true)
	src := New(inner, algorithm)

	h, err := src.OpenBytes(context.Background(), true)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := h.Write(plaintext); err != nil {
		b.Fatal(err)
	}
	if err := h.Close(); err != nil {
		b.Fatal(err)
	}
	return inner
}

func BenchmarkSource_Read(b *testing.B) {
	rng := testutil.NewRNG(42)
	plaintext := []byte(rng.Lines(4096, 79))

	for _, alg := range []Algorithm{Zstd, LZ4} {
		b.Run(alg.String(), func(b *testing.B) {
			ctx := context.Background()
			inner := seedFrame(b, alg, plaintext)
			src := New(inner, alg)

			b.SetBytes(int64(len(plaintext)))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				h, err := src.OpenBytes(ctx, false)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := io.Copy(io.Discard, h); err != nil {
					b.Fatal(err)
				}
				if err := h.Close(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSource_Commit(b *testing.B) {
	rng := testutil.NewRNG(42)
	payloads := []struct {
		name string
		data []byte
	}{
		{"compressible", []byte(rng.Lines(4096, 79))},
		{"incompressible", rng.Bytes(4096 * 80)},
	}

	for _, alg := range []Algorithm{Zstd, LZ4} {
		for _, payload := range payloads {
			b.Run(alg.String()+"/"+payload.name, func(b *testing.B) {
				ctx := context.Background()
				inner := seedFrame(b, alg, payload.data)
				src := New(inner, alg)

				b.SetBytes(int64(len(payload.data)))
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					h, err := src.OpenBytes(ctx, true)
					if err != nil {
						b.Fatal(err)
					}
					if _, err := h.Write(payload.data); err != nil {
						b.Fatal(err)
					}
					if err := h.Close(); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
