package genome

import (
	"math/rand"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// Pools defines the legal value set for every categorical gene. Continuous
// genes (HybridAlpha, MMRLambda) draw uniformly from [0,1]. An empty pool is
// a configuration error caught before any evaluation.
type Pools struct {
	EmbeddingModels    []string           `json:"embedding_models" yaml:"embedding_models"`
	RetrievalMethods   []RetrievalMethod  `json:"retrieval_methods" yaml:"retrieval_methods"`
	QueryProcessors    []QueryProcessor   `json:"query_processors" yaml:"query_processors"`
	ChunkingStrategies []ChunkingStrategy `json:"chunking_strategies" yaml:"chunking_strategies"`
	ChunkSizes         []int              `json:"chunk_sizes" yaml:"chunk_sizes"`
	Rerankers          []Reranker         `json:"rerankers" yaml:"rerankers"`
	TopKs              []int              `json:"top_ks" yaml:"top_ks"`
}

// DefaultPools returns the full gene space.
func DefaultPools() Pools {
	return Pools{
		EmbeddingModels: []string{"all-minilm", "nomic-embed-text"},
		RetrievalMethods: []RetrievalMethod{
			RetrievalDenseCosine, RetrievalDenseDot, RetrievalBM25,
			RetrievalHybridLinear, RetrievalHybridRRF, RetrievalMultiVector,
		},
		QueryProcessors: []QueryProcessor{
			QueryRaw, QueryLowercase, QuerySynonymExpand,
			QueryLLMRewrite, QueryHyDE, QueryStepBack, QueryDecomposition,
		},
		ChunkingStrategies: []ChunkingStrategy{
			ChunkNone, ChunkFixedSize, ChunkSemantic,
			ChunkSentence, ChunkParagraph, ChunkHierarchical,
		},
		ChunkSizes: []int{128, 256, 512},
		Rerankers: []Reranker{
			RerankNone, RerankMMR, RerankCrossEncoder,
			RerankLLMPointwise, RerankLLMListwise,
		},
		TopKs: []int{5, 10, 20},
	}
}

// Validate rejects pools with any empty gene value set.
func (p Pools) Validate() error {
	checks := []struct {
		name  string
		empty bool
	}{
		{"embedding_models", len(p.EmbeddingModels) == 0},
		{"retrieval_methods", len(p.RetrievalMethods) == 0},
		{"query_processors", len(p.QueryProcessors) == 0},
		{"chunking_strategies", len(p.ChunkingStrategies) == 0},
		{"chunk_sizes", len(p.ChunkSizes) == 0},
		{"rerankers", len(p.Rerankers) == 0},
		{"top_ks", len(p.TopKs) == 0},
	}
	for _, c := range checks {
		if c.empty {
			return errors.WithFields(
				errors.New(errors.InvalidConfiguration, "empty gene value set"),
				errors.Fields{"gene": c.name})
		}
	}
	return nil
}

// Random draws a full gene record uniformly from the pools.
func (p Pools) Random(rng *rand.Rand) Genes {
	return Genes{
		EmbeddingModel:  p.EmbeddingModels[rng.Intn(len(p.EmbeddingModels))],
		RetrievalMethod: p.RetrievalMethods[rng.Intn(len(p.RetrievalMethods))],
		QueryProcessor:  p.QueryProcessors[rng.Intn(len(p.QueryProcessors))],
		Chunking:        p.ChunkingStrategies[rng.Intn(len(p.ChunkingStrategies))],
		ChunkSize:       p.ChunkSizes[rng.Intn(len(p.ChunkSizes))],
		Reranker:        p.Rerankers[rng.Intn(len(p.Rerankers))],
		TopK:            p.TopKs[rng.Intn(len(p.TopKs))],
		HybridAlpha:     rng.Float64(),
		MMRLambda:       rng.Float64(),
	}
}

// Mutate returns a copy of genes where each gene is independently redrawn
// from its legal value set with probability rate. Rate 0 is an exact copy,
// rate 1 redraws every gene.
func (p Pools) Mutate(genes Genes, rate float64, rng *rand.Rand) Genes {
	out := genes
	if rng.Float64() < rate {
		out.EmbeddingModel = p.EmbeddingModels[rng.Intn(len(p.EmbeddingModels))]
	}
	if rng.Float64() < rate {
		out.RetrievalMethod = p.RetrievalMethods[rng.Intn(len(p.RetrievalMethods))]
	}
	if rng.Float64() < rate {
		out.QueryProcessor = p.QueryProcessors[rng.Intn(len(p.QueryProcessors))]
	}
	if rng.Float64() < rate {
		out.Chunking = p.ChunkingStrategies[rng.Intn(len(p.ChunkingStrategies))]
	}
	if rng.Float64() < rate {
		out.ChunkSize = p.ChunkSizes[rng.Intn(len(p.ChunkSizes))]
	}
	if rng.Float64() < rate {
		out.Reranker = p.Rerankers[rng.Intn(len(p.Rerankers))]
	}
	if rng.Float64() < rate {
		out.TopK = p.TopKs[rng.Intn(len(p.TopKs))]
	}
	if rng.Float64() < rate {
		out.HybridAlpha = rng.Float64()
	}
	if rng.Float64() < rate {
		out.MMRLambda = rng.Float64()
	}
	return out
}

// Crossover produces a uniform per-gene mix of two parents: each gene is
// taken from either parent with equal probability.
func Crossover(a, b Genes, rng *rand.Rand) Genes {
	out := a
	if rng.Intn(2) == 1 {
		out.EmbeddingModel = b.EmbeddingModel
	}
	if rng.Intn(2) == 1 {
		out.RetrievalMethod = b.RetrievalMethod
	}
	if rng.Intn(2) == 1 {
		out.QueryProcessor = b.QueryProcessor
	}
	if rng.Intn(2) == 1 {
		out.Chunking = b.Chunking
	}
	if rng.Intn(2) == 1 {
		out.ChunkSize = b.ChunkSize
	}
	if rng.Intn(2) == 1 {
		out.Reranker = b.Reranker
	}
	if rng.Intn(2) == 1 {
		out.TopK = b.TopK
	}
	if rng.Intn(2) == 1 {
		out.HybridAlpha = b.HybridAlpha
	}
	if rng.Intn(2) == 1 {
		out.MMRLambda = b.MMRLambda
	}
	return out
}
