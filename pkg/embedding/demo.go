package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// DemoEmbedder is a deterministic, offline backend for tests and the CLI's
// --demo mode. It hashes tokens into a fixed-length bag-of-words style
// vector, so texts sharing vocabulary land near each other. It is NOT a real
// embedding model and must never be the default fitness source; it exists so
// the optimizer can be exercised end to end without a provider.
type DemoEmbedder struct {
	model      string
	dimensions int
}

func NewDemoEmbedder(model string, dimensions int) *DemoEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &DemoEmbedder{model: model, dimensions: dimensions}
}

func (d *DemoEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.dimensions)
	for _, token := range scoring.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		// Non-negative term counts: disjoint texts score ~0 and any shared
		// token can only pull the cosine up, never below zero.
		vec[h.Sum32()%uint32(d.dimensions)]++
	}

	// L2-normalize so cosine and dot agree on magnitude-1 vectors.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (d *DemoEmbedder) ModelID() string { return d.model }

func (d *DemoEmbedder) Dimensions() int { return d.dimensions }

func (d *DemoEmbedder) CostPerCall() float64 { return 0 }
