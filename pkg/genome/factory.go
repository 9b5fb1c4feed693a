package genome

import (
	"math/rand"
)

// BaselineName identifies the plain dense-cosine seed genome guaranteed to
// be part of every initial population.
const BaselineName = "baseline"

// Factory creates seed and random genomes for generation 0.
type Factory struct {
	pools Pools
	rng   *rand.Rand
}

// NewFactory builds a factory over validated pools. The rng is owned by the
// caller so that runs can be made reproducible with a fixed seed.
func NewFactory(pools Pools, rng *rand.Rand) *Factory {
	return &Factory{pools: pools, rng: rng}
}

// SeedBaselines returns the hand-picked starting strategies: a plain
// dense-cosine pipeline, a pure lexical BM25 pipeline, and a hybrid-RRF
// pipeline. These anchor the search; a run's best-ever fitness can never end
// below the best of these.
func (f *Factory) SeedBaselines() []*Genome {
	model := f.pools.EmbeddingModels[0]
	topK := f.pools.TopKs[0]

	base := Genes{
		EmbeddingModel:  model,
		RetrievalMethod: RetrievalDenseCosine,
		QueryProcessor:  QueryRaw,
		Chunking:        ChunkNone,
		ChunkSize:       f.pools.ChunkSizes[0],
		Reranker:        RerankNone,
		TopK:            topK,
		HybridAlpha:     0.5,
		MMRLambda:       0.5,
	}

	bm25 := base
	bm25.RetrievalMethod = RetrievalBM25

	hybrid := base
	hybrid.RetrievalMethod = RetrievalHybridRRF

	return []*Genome{New(base, 0), New(bm25, 0), New(hybrid, 0)}
}

// NewPopulation builds the generation-0 population: seeded baselines first,
// then uniform-random genomes up to size. When size is smaller than the
// number of baselines, the baselines are truncated.
func (f *Factory) NewPopulation(size int) []*Genome {
	population := f.SeedBaselines()
	if len(population) > size {
		return population[:size]
	}
	for len(population) < size {
		population = append(population, New(f.pools.Random(f.rng), 0))
	}
	return population
}

// Random creates a single uniform-random generation-0 genome.
func (f *Factory) Random() *Genome {
	return New(f.pools.Random(f.rng), 0)
}
