package memory

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/scrypster/alphalite/pkg/types"
)

// Match is one retrieval result.
type Match struct {
	ID        string    `json:"id"`
	Sentence  string    `json:"sentence"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// CosineSimilarity returns dot(a, b) / (|a| * |b|). Vectors of different
// length, empty vectors and zero-norm vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every memory against query and returns the k best, by score
// descending, then CreatedAt ascending, then ID. The order is total, so the
// same inputs always give the same result.
func Rank(query []float64, memories []*types.Memory, k int) []Match {
	matches := make([]Match, 0, len(memories))
	for _, m := range memories {
		score := CosineSimilarity(query, m.Embedding)
		if math.IsNaN(score) {
			score = 0
		}
		matches = append(matches, Match{
			ID:        m.ID,
			Sentence:  m.Sentence,
			Score:     score,
			CreatedAt: m.CreatedAt,
		})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
