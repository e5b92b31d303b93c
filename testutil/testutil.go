package testutil

import (
	"math/rand"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n pseudo-random bytes. The content is effectively
// incompressible, which exercises worst-case transfer and compression
// paths.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// words is a small lexicon for readable content.
var words = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
	"hotel", "india", "juliett", "kilo", "lima", "mike", "november",
	"oscar", "papa", "quebec", "romeo", "sierra", "tango", "uniform",
	"victor", "whiskey", "xray", "yankee", "zulu",
}

// Text returns exactly n bytes of space-separated words. The content is
// plain ASCII, so truncation never splits a rune.
func (r *RNG) Text(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	sb.Grow(n + 16)
	for sb.Len() < n {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(words[r.rand.Intn(len(words))])
	}
	return sb.String()[:n]
}

// Lines returns n newline-terminated lines of the given width, drawn
// from the lexicon. Highly compressible relative to Bytes.
func (r *RNG) Lines(n, width int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	sb.Grow(n * (width + 1))
	for i := 0; i < n; i++ {
		var line strings.Builder
		line.Grow(width + 8)
		for line.Len() < width {
			if line.Len() > 0 {
				line.WriteByte(' ')
			}
			line.WriteString(words[r.rand.Intn(len(words))])
		}
		sb.WriteString(line.String()[:width])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Digits returns exactly n decimal digit characters.
func (r *RNG) Digits(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + r.rand.Intn(10))
	}
	return string(b)
}

// latin1Runes are characters representable in ISO-8859-1 but outside
// ASCII, so encoded forms differ from the UTF-8 form.
var latin1Runes = []rune("àâäçéèêëîïôöùûüÿß")

// Latin1Text returns n runes of text whose characters all fit
// ISO-8859-1, mixing ASCII words with accented characters. Useful for
// forced-encoding round trips.
func (r *RNG) Latin1Text(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	runes := make([]rune, n)
	for i := range runes {
		if r.rand.Intn(4) == 0 {
			runes[i] = latin1Runes[r.rand.Intn(len(latin1Runes))]
		} else {
			runes[i] = rune('a' + r.rand.Intn(26))
		}
	}
	return string(runes)
}
