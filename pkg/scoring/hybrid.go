package scoring

// RRFConstant is the smoothing constant k in 1/(k+rank). 60 is the value
// from the original reciprocal-rank-fusion paper and works well untuned.
const RRFConstant = 60

// MinMaxNormalize rescales scores into [0,1] using the min and max of the
// slice. The mapping is monotonic, so relative ordering is preserved. When
// all scores tie, every entry maps to 0.
func MinMaxNormalize(scores []DocScore) []DocScore {
	if len(scores) == 0 {
		return nil
	}

	lo, hi := scores[0].Score, scores[0].Score
	for _, s := range scores[1:] {
		if s.Score < lo {
			lo = s.Score
		}
		if s.Score > hi {
			hi = s.Score
		}
	}

	out := make([]DocScore, len(scores))
	span := hi - lo
	for i, s := range scores {
		normalized := 0.0
		if span > 0 {
			normalized = (s.Score - lo) / span
		}
		out[i] = DocScore{ID: s.ID, Score: normalized}
	}
	return out
}

// HybridLinear blends dense and sparse scores per document:
// alpha*dense + (1-alpha)*sparse, with both sides min-max normalized into
// [0,1] first so the blend operates on comparable ranges. Both inputs must
// cover the same documents in the same order; output preserves that order.
func HybridLinear(alpha float64, dense, sparse []DocScore) []DocScore {
	normDense := MinMaxNormalize(dense)
	normSparse := MinMaxNormalize(sparse)

	sparseByID := make(map[string]float64, len(normSparse))
	for _, s := range normSparse {
		sparseByID[s.ID] = s.Score
	}

	out := make([]DocScore, len(normDense))
	for i, d := range normDense {
		out[i] = DocScore{
			ID:    d.ID,
			Score: alpha*d.Score + (1-alpha)*sparseByID[d.ID],
		}
	}
	return out
}

// RRF fuses ranked lists with reciprocal rank fusion: each document
// accumulates 1/(k+rank) per list, rank starting at 1. The result depends
// only on per-list ranks, never on score magnitudes. Output order follows
// first appearance across the input lists so that exact ties stay stable.
func RRF(k int, lists ...[]DocScore) []DocScore {
	if k <= 0 {
		k = RRFConstant
	}

	fused := make(map[string]float64)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, list := range lists {
		ranked := make([]DocScore, len(list))
		copy(ranked, list)
		SortDescending(ranked)

		for rank, doc := range ranked {
			fused[doc.ID] += 1.0 / float64(k+rank+1)
			if !seen[doc.ID] {
				seen[doc.ID] = true
				order = append(order, doc.ID)
			}
		}
	}

	out := make([]DocScore, 0, len(order))
	for _, id := range order {
		out = append(out, DocScore{ID: id, Score: fused[id]})
	}
	return out
}
