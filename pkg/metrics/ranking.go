// Package metrics implements standard information-retrieval ranking metrics.
//
// Every metric operates on a ranked list of document IDs and a graded
// relevance map (ID -> gain). Binary relevance is the special case where
// every relevant document has gain 1. All metrics are defined as exactly 0
// when the query has no relevant documents, so aggregation never divides by
// zero or produces NaN.
package metrics

import (
	"math"
	"sort"
)

// NDCGAtK computes normalized discounted cumulative gain over the top k
// results. DCG uses the log2(i+2) discount with 0-indexed positions; IDCG is
// the DCG of the ideal ordering of all known relevant documents truncated
// to k.
func NDCGAtK(ranked []string, relevance map[string]float64, k int) float64 {
	if len(relevance) == 0 || k <= 0 {
		return 0
	}

	dcg := 0.0
	for i := 0; i < k && i < len(ranked); i++ {
		if gain, ok := relevance[ranked[i]]; ok {
			dcg += gain / math.Log2(float64(i)+2)
		}
	}

	gains := make([]float64, 0, len(relevance))
	for _, gain := range relevance {
		gains = append(gains, gain)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(gains)))

	idcg := 0.0
	for i := 0; i < k && i < len(gains); i++ {
		idcg += gains[i] / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}

	return dcg / idcg
}

// RecallAtK computes the fraction of relevant documents found in the top k.
func RecallAtK(ranked []string, relevance map[string]float64, k int) float64 {
	if len(relevance) == 0 || k <= 0 {
		return 0
	}

	hits := 0
	for i := 0; i < k && i < len(ranked); i++ {
		if _, ok := relevance[ranked[i]]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(relevance))
}

// MRRAtK computes the reciprocal rank of the first relevant document within
// the top k, or 0 when no relevant document appears.
func MRRAtK(ranked []string, relevance map[string]float64, k int) float64 {
	if len(relevance) == 0 || k <= 0 {
		return 0
	}

	for i := 0; i < k && i < len(ranked); i++ {
		if _, ok := relevance[ranked[i]]; ok {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// HitRateAtK is 1 when any relevant document appears in the top k, else 0.
func HitRateAtK(ranked []string, relevance map[string]float64, k int) float64 {
	if len(relevance) == 0 || k <= 0 {
		return 0
	}

	for i := 0; i < k && i < len(ranked); i++ {
		if _, ok := relevance[ranked[i]]; ok {
			return 1
		}
	}
	return 0
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
