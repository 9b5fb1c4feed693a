package evaluation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/retrievolve/pkg/dataset"
	"github.com/XiaoConstantine/retrievolve/pkg/embedding"
	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// stubGenerator returns a fixed reply per prompt keyword.
type stubGenerator struct {
	reply func(prompt string) (string, error)
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply(prompt)
}

func (s *stubGenerator) CostPerCall() float64 { return 0.002 }

// flakyEmbedder succeeds for the first n calls, then fails. Lets tests
// embed the corpus successfully and fail only on query embeddings.
type flakyEmbedder struct {
	inner embedding.Embedder
	limit int
	calls int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls > f.limit {
		return embedding.Degraded(f.inner.Dimensions(), fmt.Errorf("provider unavailable"))
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) ModelID() string      { return f.inner.ModelID() }
func (f *flakyEmbedder) Dimensions() int      { return f.inner.Dimensions() }
func (f *flakyEmbedder) CostPerCall() float64 { return f.inner.CostPerCall() }

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	docs := []dataset.Document{
		{ID: "d1", Content: "quantum mechanics explains wave particle duality in physics experiments"},
		{ID: "d2", Content: "sourdough bread baking requires patient fermentation of wild yeast starter"},
		{ID: "d3", Content: "marathon running endurance training builds aerobic capacity over months"},
		{ID: "d4", Content: "jazz improvisation relies on chord progressions and melodic vocabulary"},
	}
	queries := []dataset.Query{
		{ID: "q1", Text: "wave particle duality physics", RelevantDocs: []string{"d1"}, Type: "factual"},
		{ID: "q2", Text: "sourdough fermentation yeast starter", RelevantDocs: []string{"d2"}, Type: "factual"},
		{ID: "q3", Text: "marathon endurance aerobic training", RelevantDocs: []string{"d3"}, Difficulty: "easy"},
	}
	ds, err := dataset.New(docs, queries)
	require.NoError(t, err)
	return ds
}

func testRegistry(dim int) *embedding.Registry {
	reg := embedding.NewRegistry()
	reg.Register(embedding.NewDemoEmbedder("demo-model", dim))
	return reg
}

func denseGenes() genome.Genes {
	return genome.Genes{
		EmbeddingModel:  "demo-model",
		RetrievalMethod: genome.RetrievalDenseCosine,
		QueryProcessor:  genome.QueryRaw,
		Chunking:        genome.ChunkNone,
		Reranker:        genome.RerankNone,
		TopK:            3,
		HybridAlpha:     0.5,
		MMRLambda:       0.5,
	}
}

func evenWeights() Weights {
	return Weights{Correctness: 0.6, Speed: 0.2, Cost: 0.2}
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, Weights{Correctness: 1, Speed: 0, Cost: 0}.Validate())
	assert.NoError(t, evenWeights().Validate())

	err := Weights{Correctness: 0.5, Speed: 0.2, Cost: 0.2}.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))

	err = Weights{Correctness: 1.5, Speed: -0.3, Cost: -0.2}.Validate()
	require.Error(t, err)
}

func TestNewEngineRejectsBadWeights(t *testing.T) {
	_, err := NewEngine(testDataset(t), testRegistry(256), Weights{Correctness: 2})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidConfiguration))
}

func TestInitialK(t *testing.T) {
	g := denseGenes()
	assert.Equal(t, 3, initialK(g), "no reranker keeps topK")

	g.Reranker = genome.RerankMMR
	assert.Equal(t, 50, initialK(g), "reranker widens to the floor")

	g.TopK = 20
	assert.Equal(t, 60, initialK(g), "3x topK above the floor")
}

func TestChunkDocuments(t *testing.T) {
	docs := []dataset.Document{
		{ID: "a", Content: "First sentence here. Second sentence there. Third one too."},
	}

	whole := chunkDocuments(docs, genome.ChunkNone, 0)
	require.Len(t, whole, 1)
	assert.Equal(t, "a", whole[0].ID)
	assert.Equal(t, "a", whole[0].ParentID)

	sents := chunkDocuments(docs, genome.ChunkSentence, 0)
	require.Len(t, sents, 3)
	for i, c := range sents {
		assert.Equal(t, "a", c.ParentID)
		assert.Equal(t, fmt.Sprintf("a#%d", i), c.ID)
	}

	fixed := chunkDocuments(docs, genome.ChunkFixedSize, 4)
	require.True(t, len(fixed) > 1)
	var rejoined []string
	for _, c := range fixed {
		assert.Equal(t, "a", c.ParentID)
		rejoined = append(rejoined, c.Text)
	}
	assert.Equal(t, docs[0].Content, strings.Join(rejoined, " "))
}

func TestChunkParagraphs(t *testing.T) {
	docs := []dataset.Document{
		{ID: "a", Content: "para one text\n\npara two text\n\n\n\npara three"},
	}
	chunks := chunkDocuments(docs, genome.ChunkParagraph, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, "para one text", chunks[0].Text)
	assert.Equal(t, "para three", chunks[2].Text)
}

func TestChunkHierarchical(t *testing.T) {
	docs := []dataset.Document{
		{ID: "a", Content: "One sentence. Another sentence.\n\nSecond para only."},
	}
	chunks := chunkDocuments(docs, genome.ChunkHierarchical, 0)
	// 2 paragraphs + 2 sentences from the first paragraph.
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Equal(t, "a", c.ParentID)
	}
}

func TestProcessQueryRaw(t *testing.T) {
	e := mustEngine(t, nil)
	variants, calls, err := e.processQuery(context.Background(), genome.QueryRaw, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, []string{"Hello World"}, variants)
}

func TestProcessQueryLowercase(t *testing.T) {
	e := mustEngine(t, nil)
	variants, _, err := e.processQuery(context.Background(), genome.QueryLowercase, "Hello WORLD")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, variants)
}

func TestProcessQuerySynonyms(t *testing.T) {
	e := mustEngine(t, nil)
	variants, calls, err := e.processQuery(context.Background(), genome.QuerySynonymExpand, "fast car")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	require.Len(t, variants, 1)
	for _, term := range []string{"fast", "car", "quick", "rapid", "automobile", "vehicle"} {
		assert.Contains(t, variants[0], term)
	}
}

func TestProcessQueryLLMFallback(t *testing.T) {
	// No generator configured: LLM processors degrade to the raw query.
	e := mustEngine(t, nil)
	for _, proc := range []genome.QueryProcessor{
		genome.QueryLLMRewrite, genome.QueryHyDE, genome.QueryStepBack, genome.QueryDecomposition,
	} {
		variants, calls, err := e.processQuery(context.Background(), proc, "original query")
		require.NoError(t, err)
		assert.Equal(t, 0, calls)
		assert.Equal(t, []string{"original query"}, variants, string(proc))
	}
}

func TestProcessQueryRewrite(t *testing.T) {
	gen := &stubGenerator{reply: func(string) (string, error) {
		return "rewritten query", nil
	}}
	e := mustEngine(t, gen)
	variants, calls, err := e.processQuery(context.Background(), genome.QueryLLMRewrite, "orig")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"rewritten query"}, variants)
}

func TestProcessQueryStepBackKeepsOriginal(t *testing.T) {
	gen := &stubGenerator{reply: func(string) (string, error) {
		return "what is the general topic?", nil
	}}
	e := mustEngine(t, gen)
	variants, _, err := e.processQuery(context.Background(), genome.QueryStepBack, "specific question")
	require.NoError(t, err)
	assert.Equal(t, []string{"specific question", "what is the general topic?"}, variants)
}

func TestProcessQueryDecomposition(t *testing.T) {
	gen := &stubGenerator{reply: func(string) (string, error) {
		return "1. first sub-question\n2. second sub-question\n", nil
	}}
	e := mustEngine(t, gen)
	variants, _, err := e.processQuery(context.Background(), genome.QueryDecomposition, "compound question")
	require.NoError(t, err)
	assert.Equal(t, []string{"first sub-question", "second sub-question"}, variants)
}

func TestParseOrdering(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, parseOrdering("3, 1, 2", 3))
	assert.Equal(t, []int{1}, parseOrdering("[2] then [2] again, [9] ignored", 3))
	assert.Empty(t, parseOrdering("no idea", 3))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))

	// Cutting inside a multi-byte rune must back off to the rune boundary.
	s := "héllo wörld" // é and ö are two bytes each
	for limit := 1; limit < len(s); limit++ {
		got := truncateText(s, limit)
		assert.True(t, utf8.ValidString(got), "limit %d produced invalid UTF-8: %q", limit, got)
		assert.LessOrEqual(t, len(got), limit+len("..."))
	}
}

func TestRerankListwise(t *testing.T) {
	gen := &stubGenerator{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Order the following") {
			return "2, 1", nil
		}
		return "", nil
	}}
	e := mustEngine(t, gen)
	candidates := []scoring.DocScore{{ID: "d1", Score: 0.9}, {ID: "d2", Score: 0.8}, {ID: "d3", Score: 0.7}}

	out, calls, err := e.rerankListwise(context.Background(), "q", candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	// Reordered head per the verdict, omitted candidate keeps its slot at the tail.
	assert.Equal(t, []string{"d2", "d1", "d3"}, ids(out))
}

func TestRerankListwiseTruncatesWithoutResorting(t *testing.T) {
	gen := &stubGenerator{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Order the following") {
			return "3, 1, 2", nil
		}
		return "", nil
	}}
	e := mustEngine(t, gen)
	candidates := []scoring.DocScore{{ID: "d1", Score: 0.9}, {ID: "d2", Score: 0.8}, {ID: "d3", Score: 0.7}}

	out, _, err := e.rerankListwise(context.Background(), "q", candidates, 2)
	require.NoError(t, err)
	// The verdict's head survives truncation even though d3 carries the
	// lowest retrieval score.
	assert.Equal(t, []string{"d3", "d1"}, ids(out))
}

func TestRerankPointwise(t *testing.T) {
	verdicts := map[string]string{"d1": "2", "d2": "9", "d3": "5"}
	gen := &stubGenerator{reply: func(prompt string) (string, error) {
		for id, v := range verdicts {
			if strings.Contains(prompt, "doc "+id) {
				return v, nil
			}
		}
		return "0", nil
	}}
	e := mustEngineWithDocs(t, gen, []dataset.Document{
		{ID: "d1", Content: "doc d1"}, {ID: "d2", Content: "doc d2"}, {ID: "d3", Content: "doc d3"},
	})
	candidates := []scoring.DocScore{{ID: "d1", Score: 0.9}, {ID: "d2", Score: 0.8}, {ID: "d3", Score: 0.7}}

	out, calls, err := e.rerankPointwise(context.Background(), "q", candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"d2", "d3"}, ids(out))
}

func TestEvaluateDenseCosine(t *testing.T) {
	e := mustEngine(t, nil)
	g := genome.New(denseGenes(), 0)

	fit, err := e.Evaluate(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 0, fit.DegradedQueryCount)

	// Each query shares most of its vocabulary with exactly one document,
	// so dense retrieval should rank the labeled document first.
	assert.Equal(t, 1.0, fit.NDCG)
	assert.Equal(t, 1.0, fit.Recall)
	assert.Equal(t, 1.0, fit.MRR)
	assert.Equal(t, 1.0, fit.HitRate)
	assert.InDelta(t, 1.0, fit.Correctness, 1e-9)

	assert.Greater(t, fit.Speed, 0.0)
	assert.LessOrEqual(t, fit.Speed, 1.0)
	assert.Equal(t, 1.0, fit.Cost, "demo embedder is free")
	assert.Greater(t, fit.Overall, 0.0)
	assert.LessOrEqual(t, fit.Overall, 1.0)

	assert.Contains(t, fit.ByTag, "type:factual")
	assert.Contains(t, fit.ByTag, "difficulty:easy")
}

func TestEvaluateBM25(t *testing.T) {
	e := mustEngine(t, nil)
	genes := denseGenes()
	genes.RetrievalMethod = genome.RetrievalBM25

	fit, err := e.Evaluate(context.Background(), genome.New(genes, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, fit.DegradedQueryCount)
	assert.Equal(t, 1.0, fit.HitRate, "shared query terms should surface the labeled doc")
}

func TestEvaluateAllMethods(t *testing.T) {
	e := mustEngine(t, nil)
	for _, method := range []genome.RetrievalMethod{
		genome.RetrievalDenseCosine, genome.RetrievalDenseDot, genome.RetrievalBM25,
		genome.RetrievalHybridLinear, genome.RetrievalHybridRRF, genome.RetrievalMultiVector,
	} {
		genes := denseGenes()
		genes.RetrievalMethod = method
		fit, err := e.Evaluate(context.Background(), genome.New(genes, 0))
		require.NoError(t, err, string(method))
		assert.Equal(t, 0, fit.DegradedQueryCount, string(method))
		assert.GreaterOrEqual(t, fit.Overall, 0.0, string(method))
		assert.LessOrEqual(t, fit.Overall, 1.0, string(method))
	}
}

func TestEvaluateWithMMR(t *testing.T) {
	e := mustEngine(t, nil)
	genes := denseGenes()
	genes.Reranker = genome.RerankMMR
	genes.MMRLambda = 0.7

	fit, err := e.Evaluate(context.Background(), genome.New(genes, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, fit.DegradedQueryCount)
	assert.Greater(t, fit.HitRate, 0.0)
}

func TestEvaluateDegradedQueries(t *testing.T) {
	ds := testDataset(t)
	// Corpus has 4 documents; allow exactly those embeddings, then fail
	// every query embedding.
	reg := embedding.NewRegistry()
	reg.Register(&flakyEmbedder{inner: embedding.NewDemoEmbedder("demo-model", 256), limit: 4})
	e, err := NewEngine(ds, reg, evenWeights())
	require.NoError(t, err)

	fit, err := e.Evaluate(context.Background(), genome.New(denseGenes(), 0))
	require.NoError(t, err, "degraded queries must not abort the evaluation")
	assert.Equal(t, len(ds.Queries), fit.DegradedQueryCount)
	assert.Equal(t, 0.0, fit.Overall)
}

func TestEvaluateCanceled(t *testing.T) {
	e := mustEngine(t, nil)
	genes := denseGenes()
	genes.RetrievalMethod = genome.RetrievalBM25

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Evaluate(ctx, genome.New(genes, 0))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.Canceled))
}

func TestEvaluateUnknownModel(t *testing.T) {
	e := mustEngine(t, nil)
	genes := denseGenes()
	genes.EmbeddingModel = "no-such-model"

	_, err := e.Evaluate(context.Background(), genome.New(genes, 0))
	require.Error(t, err)
}

func mustEngine(t *testing.T, gen TextGenerator) *Engine {
	t.Helper()
	var opts []Option
	if gen != nil {
		opts = append(opts, WithGenerator(gen))
	}
	e, err := NewEngine(testDataset(t), testRegistry(256), evenWeights(), opts...)
	require.NoError(t, err)
	return e
}

func mustEngineWithDocs(t *testing.T, gen TextGenerator, docs []dataset.Document) *Engine {
	t.Helper()
	queries := []dataset.Query{{ID: "q1", Text: "q", RelevantDocs: []string{docs[0].ID}}}
	ds, err := dataset.New(docs, queries)
	require.NoError(t, err)
	e, err := NewEngine(ds, testRegistry(256), evenWeights(), WithGenerator(gen))
	require.NoError(t, err)
	return e
}

func ids(scores []scoring.DocScore) []string {
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.ID
	}
	return out
}
