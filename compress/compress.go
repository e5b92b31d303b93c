// Package compress decorates sources with transparent stream
// compression. A compressed source presents the decompressed content:
// reads decompress at open, writable handles collect plaintext and
// recompress into the inner source when they close.
//
// Zstd uses the zstd frame format, LZ4 the LZ4 frame format, so the
// inner bytes interoperate with the usual command line tools.
package compress

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/datasource"
)

// Algorithm identifies a compression format.
type Algorithm uint8

const (
	// Zstd is the zstd frame format (better ratio, good for cold data).
	Zstd Algorithm = iota
	// LZ4 is the LZ4 frame format (fast, good for hot data).
	LZ4
)

func (a Algorithm) String() string {
	switch a {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// Detect guesses the algorithm from a file name.
func Detect(path string) (Algorithm, bool) {
	switch {
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		return Zstd, true
	case strings.HasSuffix(path, ".lz4"):
		return LZ4, true
	default:
		return 0, false
	}
}

// Zstd encoder/decoder pools for efficiency.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// decompress expands a complete compressed payload. Empty input stands
// for empty content, not a truncated frame.
func decompress(algorithm Algorithm, compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, nil
	}

	switch algorithm {
	case Zstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		out, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, datasource.NewEncodingError("zstd", err)
		}
		return out, nil

	case LZ4:
		var out bytes.Buffer
		if _, err := out.ReadFrom(lz4.NewReader(bytes.NewReader(compressed))); err != nil {
			return nil, datasource.NewEncodingError("lz4", err)
		}
		return out.Bytes(), nil

	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algorithm)
	}
}

// compress produces a complete frame for the plaintext. Empty plaintext
// maps back to empty output so an untouched source stays empty.
func compress(algorithm Algorithm, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}

	switch algorithm {
	case Zstd:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)

		return enc.EncodeAll(plaintext, nil), nil

	case LZ4:
		var out bytes.Buffer
		zw := lz4.NewWriter(&out)
		if _, err := zw.Write(plaintext); err != nil {
			return nil, datasource.NewEncodingError("lz4", err)
		}
		if err := zw.Close(); err != nil {
			return nil, datasource.NewEncodingError("lz4", err)
		}
		return out.Bytes(), nil

	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algorithm)
	}
}
