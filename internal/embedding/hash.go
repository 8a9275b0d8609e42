package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is an offline Provider that builds deterministic bag-of-words
// vectors: each lower-cased word is hashed into a seed that fills a
// pseudo-random unit vector, and the word vectors are summed. Sentences
// sharing words therefore score above unrelated ones. It needs no network
// and is meant for development and tests.
type Hash struct {
	dimensions int
}

var _ Provider = (*Hash)(nil)

// NewHash returns a Hash provider producing vectors of the given length
// (default 256).
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Hash{dimensions: dimensions}
}

func (h *Hash) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		seed := f.Sum64()
		for i := range vec {
			// Linear congruential generator mapped to [-1, 1].
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float64(int64(seed)) / math.MaxInt64
		}
	}
	return normalize(vec), nil
}

func (h *Hash) Available() bool { return true }

func (h *Hash) Model() string { return "hash" }

// Dimensions returns the vector length.
func (h *Hash) Dimensions() int { return h.dimensions }

func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
