package scoring

type mmrEntry struct {
	doc DocScore
	rel float64
}

// MMRRerank re-orders an initial candidate list with maximal marginal
// relevance: each step selects the candidate maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToSelected
//
// where relevance is the candidate's retrieval score min-max normalized into
// [0,1] and similarity is cosine similarity over the supplied document
// vectors. Ties break toward the earlier original rank. Returns at most k
// documents.
//
// Lambda 1 reduces to the original ranking; lambda 0 maximizes diversity.
func MMRRerank(candidates []DocScore, vectors map[string][]float32, lambda float64, k int) []DocScore {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := MinMaxNormalize(candidates)

	remaining := make([]mmrEntry, len(candidates))
	for i, c := range candidates {
		remaining[i] = mmrEntry{doc: c, rel: relevance[i].Score}
	}

	selected := make([]DocScore, 0, k)
	selectedVecs := make([][]float32, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selectedVecs, vectors, lambda)

		for i := 1; i < len(remaining); i++ {
			score := mmrScore(remaining[i], selectedVecs, vectors, lambda)
			// Strict > keeps the earlier original rank on exact ties.
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		chosen := remaining[bestIdx]
		selected = append(selected, chosen.doc)
		if vec, ok := vectors[chosen.doc.ID]; ok {
			selectedVecs = append(selectedVecs, vec)
		}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func mmrScore(e mmrEntry, selectedVecs [][]float32, vectors map[string][]float32, lambda float64) float64 {
	maxSim := 0.0
	if vec, ok := vectors[e.doc.ID]; ok {
		for _, sel := range selectedVecs {
			if sim := Cosine(vec, sel); sim > maxSim {
				maxSim = sim
			}
		}
	}
	return lambda*e.rel - (1-lambda)*maxSim
}
