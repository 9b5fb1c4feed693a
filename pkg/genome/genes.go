// Package genome encodes one retrieval-pipeline configuration as a fixed
// record of categorical and continuous genes, plus the factory and genetic
// operators that create new encodings. Genomes are value objects: operators
// always return a fresh genome with cleared fitness, never mutate in place.
package genome

import (
	"fmt"
	"strings"
)

// RetrievalMethod selects how corpus documents are scored against a query.
type RetrievalMethod string

const (
	RetrievalDenseCosine  RetrievalMethod = "dense-cosine"
	RetrievalDenseDot     RetrievalMethod = "dense-dot"
	RetrievalBM25         RetrievalMethod = "bm25"
	RetrievalHybridLinear RetrievalMethod = "hybrid-linear"
	RetrievalHybridRRF    RetrievalMethod = "hybrid-rrf"
	RetrievalMultiVector  RetrievalMethod = "multi-vector"
)

// QueryProcessor transforms query text before embedding/scoring.
type QueryProcessor string

const (
	QueryRaw           QueryProcessor = "raw"
	QueryLowercase     QueryProcessor = "lowercase"
	QuerySynonymExpand QueryProcessor = "synonym-expansion"
	QueryLLMRewrite    QueryProcessor = "llm-rewrite"
	QueryHyDE          QueryProcessor = "hyde"
	QueryStepBack      QueryProcessor = "step-back"
	QueryDecomposition QueryProcessor = "decomposition"
)

// ChunkingStrategy controls how documents are split before indexing.
type ChunkingStrategy string

const (
	ChunkNone         ChunkingStrategy = "none"
	ChunkFixedSize    ChunkingStrategy = "fixed-size"
	ChunkSemantic     ChunkingStrategy = "semantic"
	ChunkSentence     ChunkingStrategy = "sentence"
	ChunkParagraph    ChunkingStrategy = "paragraph"
	ChunkHierarchical ChunkingStrategy = "hierarchical"
)

// Reranker narrows/reorders the initial candidate list to the final top-K.
type Reranker string

const (
	RerankNone         Reranker = "none"
	RerankMMR          Reranker = "mmr"
	RerankCrossEncoder Reranker = "cross-encoder"
	RerankLLMPointwise Reranker = "llm-pointwise"
	RerankLLMListwise  Reranker = "llm-listwise"
)

// Genes is the fixed record of independent fields defining one retrieval
// strategy. ChunkSize only applies when Chunking is fixed-size; HybridAlpha
// only applies to hybrid-linear; MMRLambda only applies when the reranker
// is MMR. Inapplicable genes are carried but ignored by evaluation.
type Genes struct {
	EmbeddingModel  string           `json:"embedding_model"`
	RetrievalMethod RetrievalMethod  `json:"retrieval_method"`
	QueryProcessor  QueryProcessor   `json:"query_processor"`
	Chunking        ChunkingStrategy `json:"chunking_strategy"`
	ChunkSize       int              `json:"chunk_size"`
	Reranker        Reranker         `json:"reranker"`
	TopK            int              `json:"top_k"`
	HybridAlpha     float64          `json:"hybrid_alpha"`
	MMRLambda       float64          `json:"mmr_lambda"`
}

// NumGenes is the number of independently mutable gene slots in Genes.
const NumGenes = 9

// Signature returns a canonical string identifying the gene combination,
// used for population diversity measurement.
func (g Genes) Signature() string {
	return strings.Join([]string{
		g.EmbeddingModel,
		string(g.RetrievalMethod),
		string(g.QueryProcessor),
		string(g.Chunking),
		fmt.Sprintf("%d", g.ChunkSize),
		string(g.Reranker),
		fmt.Sprintf("%d", g.TopK),
		fmt.Sprintf("%.3f", g.HybridAlpha),
		fmt.Sprintf("%.3f", g.MMRLambda),
	}, "|")
}
