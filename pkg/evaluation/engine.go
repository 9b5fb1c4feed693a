// Package evaluation scores retrieval-strategy genomes against a labeled
// dataset. The engine runs every query through the genome's full pipeline
// (query processing, embedding, scoring, chunk mapping, reranking), computes
// ranking metrics against the relevance labels, and folds metric quality,
// latency, and monetary cost into a single fitness result.
package evaluation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/XiaoConstantine/retrievolve/pkg/dataset"
	"github.com/XiaoConstantine/retrievolve/pkg/embedding"
	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
	"github.com/XiaoConstantine/retrievolve/pkg/metrics"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// Weights splits overall fitness across the three objectives. The three
// fields must sum to 1; the engine refuses misconfigured weights instead of
// silently renormalizing.
type Weights struct {
	Correctness float64 `json:"correctness" yaml:"correctness"`
	Speed       float64 `json:"speed" yaml:"speed"`
	Cost        float64 `json:"cost" yaml:"cost"`
}

const weightTolerance = 1e-9

// Validate checks that the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Correctness < 0 || w.Speed < 0 || w.Cost < 0 {
		return errors.New(errors.InvalidConfiguration, "fitness weights must be non-negative")
	}
	if sum := w.Correctness + w.Speed + w.Cost; math.Abs(sum-1) > weightTolerance {
		return errors.WithFields(
			errors.New(errors.InvalidConfiguration, "fitness weights must sum to 1"),
			errors.Fields{"sum": sum})
	}
	return nil
}

// Correctness blend over the raw ranking metrics.
const (
	ndcgWeight   = 0.4
	recallWeight = 0.3
	mrrWeight    = 0.3
)

// initialKFloor is the minimum candidate-pool width handed to a reranker.
const initialKFloor = 50

// Defaults for the fitness scale constants.
const (
	DefaultMetricK      = 10
	DefaultLatencyScale = 100 * time.Millisecond
	DefaultCostScale    = 0.001
)

// Engine evaluates genomes against one dataset. It is safe for concurrent
// use; corpus views (chunked, indexed, embedded corpora) are memoized per
// (model, chunking, chunk size) so concurrent evaluations share them.
type Engine struct {
	dataset  *dataset.Dataset
	registry *embedding.Registry
	weights  Weights

	generator  TextGenerator
	pairScorer PairScorer

	metricK      int
	latencyScale time.Duration
	costScale    float64

	mu    sync.Mutex
	views map[viewKey]*corpusView
}

// Option configures optional engine behavior.
type Option func(*Engine)

// WithGenerator wires a text generator for LLM-backed query processors and
// rerankers. Without one those genes fall back to pass-through behavior.
func WithGenerator(g TextGenerator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithPairScorer wires a cross-encoder implementation.
func WithPairScorer(p PairScorer) Option {
	return func(e *Engine) { e.pairScorer = p }
}

// WithMetricK overrides the metric cutoff (default 10). Non-positive
// values keep the default.
func WithMetricK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.metricK = k
		}
	}
}

// WithScales overrides the latency and cost scale constants used by the
// inverse fitness transforms. Non-positive values keep the defaults.
func WithScales(latency time.Duration, cost float64) Option {
	return func(e *Engine) {
		if latency > 0 {
			e.latencyScale = latency
		}
		if cost > 0 {
			e.costScale = cost
		}
	}
}

// NewEngine builds an engine for the dataset. Weights are validated up
// front; an invalid configuration fails the run before any evaluation.
func NewEngine(ds *dataset.Dataset, registry *embedding.Registry, weights Weights, opts ...Option) (*Engine, error) {
	if ds == nil {
		return nil, errors.New(errors.InvalidConfiguration, "evaluation requires a dataset")
	}
	if registry == nil {
		return nil, errors.New(errors.InvalidConfiguration, "evaluation requires an embedder registry")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		dataset:      ds,
		registry:     registry,
		weights:      weights,
		metricK:      DefaultMetricK,
		latencyScale: DefaultLatencyScale,
		costScale:    DefaultCostScale,
		views:        make(map[viewKey]*corpusView),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// initialK returns the candidate-pool width before reranking.
func initialK(g genome.Genes) int {
	if g.Reranker == genome.RerankNone {
		return g.TopK
	}
	k := g.TopK * 3
	if k < initialKFloor {
		k = initialKFloor
	}
	return k
}

// Evaluate runs every dataset query through the genome's pipeline and
// aggregates the results. Individual query failures degrade the result
// instead of aborting it; only configuration errors and context
// cancellation abort.
func (e *Engine) Evaluate(ctx context.Context, g *genome.Genome) (*genome.FitnessResult, error) {
	logger := logging.GetLogger()
	genes := g.Genes

	embedder, err := e.registry.Get(genes.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	view, err := e.view(ctx, embedder, genes)
	if err != nil {
		return nil, err
	}

	var (
		ndcgs, recalls, mrrs, hits []float64
		latencies                  []time.Duration
		costs                      []float64
		degraded                   int
		tagSums                    = make(map[string]float64)
		tagCounts                  = make(map[string]int)
	)

	for _, query := range e.dataset.Queries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.Canceled, "evaluation canceled")
		}

		start := time.Now()
		ranked, embedCalls, llmCalls, qerr := e.runQuery(ctx, embedder, view, genes, query.Text)
		elapsed := time.Since(start)
		if qerr != nil {
			logger.Warn(ctx, "query %s degraded for genome %s: %v", query.ID, g.Name(), qerr)
			degraded++
			continue
		}

		relevance := query.Relevance()
		ndcg := metrics.NDCGAtK(ranked, relevance, e.metricK)
		ndcgs = append(ndcgs, ndcg)
		recalls = append(recalls, metrics.RecallAtK(ranked, relevance, e.metricK))
		mrrs = append(mrrs, metrics.MRRAtK(ranked, relevance, e.metricK))
		hits = append(hits, metrics.HitRateAtK(ranked, relevance, e.metricK))
		latencies = append(latencies, elapsed)

		queryCost := float64(embedCalls) * embedder.CostPerCall()
		if e.generator != nil {
			queryCost += float64(llmCalls) * e.generator.CostPerCall()
		}
		costs = append(costs, queryCost)

		for _, tag := range queryTags(query) {
			tagSums[tag] += ndcg
			tagCounts[tag]++
		}
	}

	result := &genome.FitnessResult{DegradedQueryCount: degraded}
	if len(ndcgs) == 0 {
		// Every query failed; zero fitness with the degraded count lets
		// the driver flag this genome instead of crashing the run.
		logger.Warn(ctx, "all %d queries degraded for genome %s", degraded, g.Name())
		return result, nil
	}

	result.NDCG = metrics.Mean(ndcgs)
	result.Recall = metrics.Mean(recalls)
	result.MRR = metrics.Mean(mrrs)
	result.HitRate = metrics.Mean(hits)
	result.MeanLatency = meanDuration(latencies)
	result.MeanCost = metrics.Mean(costs)

	result.Correctness = ndcgWeight*result.NDCG + recallWeight*result.Recall + mrrWeight*result.MRR
	result.Speed = 1 / (1 + result.MeanLatency.Seconds()/e.latencyScale.Seconds())
	result.Cost = 1 / (1 + result.MeanCost/e.costScale)
	result.Overall = e.weights.Correctness*result.Correctness +
		e.weights.Speed*result.Speed +
		e.weights.Cost*result.Cost

	if len(tagSums) > 0 {
		result.ByTag = make(map[string]float64, len(tagSums))
		for tag, sum := range tagSums {
			result.ByTag[tag] = sum / float64(tagCounts[tag])
		}
	}
	return result, nil
}

// runQuery executes the genome pipeline for one query and returns the final
// ranked parent-document IDs plus the embedding and generator call counts
// used for cost accounting.
func (e *Engine) runQuery(ctx context.Context, embedder embedding.Embedder, view *corpusView, genes genome.Genes, text string) ([]string, int, int, error) {
	variants, llmCalls, err := e.processQuery(ctx, genes.QueryProcessor, text)
	if err != nil {
		return nil, 0, llmCalls, err
	}

	embedCalls := 0
	lists := make([][]scoring.DocScore, 0, len(variants))
	for _, variant := range variants {
		var queryVec []float32
		if needsQueryVector(genes) {
			queryVec, err = embedder.Embed(ctx, variant)
			embedCalls++
			if err != nil {
				return nil, embedCalls, llmCalls, err
			}
		}
		lists = append(lists, scoreChunks(genes, view, variant, queryVec))
	}

	fused := lists[0]
	if len(lists) > 1 {
		fused = scoring.RRF(scoring.RRFConstant, lists...)
	}
	scoring.SortDescending(fused)

	parents, parentVecs := view.collapseToParents(fused)
	candidates := scoring.TopK(parents, initialK(genes))

	reranked, rerankCalls, err := e.rerank(ctx, genes, text, candidates, parentVecs)
	llmCalls += rerankCalls
	if err != nil {
		return nil, embedCalls, llmCalls, err
	}

	ids := make([]string, len(reranked))
	for i, ds := range reranked {
		ids[i] = ds.ID
	}
	return ids, embedCalls, llmCalls, nil
}

// scoreChunks scores every chunk in the view against one query variant
// using the genome's retrieval method. Multi-vector scores chunks densely;
// the per-parent max is taken when chunk hits collapse to parents.
func scoreChunks(genes genome.Genes, view *corpusView, variant string, queryVec []float32) []scoring.DocScore {
	switch genes.RetrievalMethod {
	case genome.RetrievalDenseCosine, genome.RetrievalMultiVector:
		return view.denseScores(queryVec, scoring.Cosine)
	case genome.RetrievalDenseDot:
		return view.denseScores(queryVec, scoring.Dot)
	case genome.RetrievalBM25:
		return view.bm25.ScoreAll(scoring.Tokenize(variant), view.chunkIDs)
	case genome.RetrievalHybridLinear:
		dense := view.denseScores(queryVec, scoring.Cosine)
		sparse := view.bm25.ScoreAll(scoring.Tokenize(variant), view.chunkIDs)
		return scoring.HybridLinear(genes.HybridAlpha, dense, sparse)
	case genome.RetrievalHybridRRF:
		dense := view.denseScores(queryVec, scoring.Cosine)
		sparse := view.bm25.ScoreAll(scoring.Tokenize(variant), view.chunkIDs)
		return scoring.RRF(scoring.RRFConstant, dense, sparse)
	default:
		return view.denseScores(queryVec, scoring.Cosine)
	}
}

func needsQueryVector(g genome.Genes) bool {
	return g.RetrievalMethod != genome.RetrievalBM25
}

// needsDocVectors reports whether the corpus view must carry a dense vector
// per chunk: any dense-scoring method, plus MMR which measures redundancy
// between candidate vectors regardless of how they were retrieved.
func needsDocVectors(g genome.Genes) bool {
	return needsQueryVector(g) || g.Reranker == genome.RerankMMR
}

func queryTags(q dataset.Query) []string {
	var tags []string
	if q.Type != "" {
		tags = append(tags, "type:"+q.Type)
	}
	if q.Difficulty != "" {
		tags = append(tags, "difficulty:"+q.Difficulty)
	}
	return tags
}

func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}
