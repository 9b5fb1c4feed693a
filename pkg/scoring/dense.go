// Package scoring provides the similarity and relevance functions used to
// rank corpus documents against a query: dense vector similarity, BM25
// lexical scoring, hybrid fusion (linear and reciprocal-rank), and MMR
// diversity re-ranking.
//
// All ordering produced by this package is stable: exact score ties preserve
// the input ordering, so repeated runs over the same inputs rank identically.
package scoring

import (
	"math"
	"sort"
)

// DocScore pairs a document ID with a relevance score.
type DocScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Cosine computes cosine similarity between two vectors. A zero-norm input
// scores 0 rather than producing NaN.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Dot computes the raw inner product, no normalization.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// SortDescending orders scores from highest to lowest. Ties keep their
// original relative order.
func SortDescending(scores []DocScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
}

// TopK returns the k highest-scoring entries (stable on ties) without
// mutating the input.
func TopK(scores []DocScore, k int) []DocScore {
	out := make([]DocScore, len(scores))
	copy(out, scores)
	SortDescending(out)
	if k < len(out) {
		out = out[:k]
	}
	return out
}
