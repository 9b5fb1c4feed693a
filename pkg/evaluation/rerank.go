package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// PairScorer scores a (query, document) pair jointly, the cross-encoder
// contract. Implementations may call out to a dedicated reranking model.
type PairScorer interface {
	ScorePair(ctx context.Context, query, doc string) (float64, error)
	CostPerCall() float64
}

const promptDocLimit = 400

const (
	pointwisePrompt = "On a scale of 0 to 10, how relevant is the document to the query? " +
		"Reply with a single number only.\n\nQuery: %s\n\nDocument: %s"
	listwisePrompt = "Order the following documents from most to least relevant to the query. " +
		"Reply with the document numbers only, comma separated.\n\nQuery: %s\n\n%s"
)

// rerank narrows and reorders the candidate list to topK according to the
// genome's reranker gene. vectors supplies a dense vector per candidate ID
// for MMR. LLM rerankers fall back to the incoming order when no generator
// is configured or its output cannot be parsed.
func (e *Engine) rerank(ctx context.Context, g genome.Genes, query string, candidates []scoring.DocScore, vectors map[string][]float32) ([]scoring.DocScore, int, error) {
	switch g.Reranker {
	case genome.RerankMMR:
		return scoring.MMRRerank(candidates, vectors, g.MMRLambda, g.TopK), 0, nil

	case genome.RerankCrossEncoder:
		return e.rerankCrossEncoder(ctx, query, candidates, g.TopK)

	case genome.RerankLLMPointwise:
		return e.rerankPointwise(ctx, query, candidates, g.TopK)

	case genome.RerankLLMListwise:
		return e.rerankListwise(ctx, query, candidates, g.TopK)

	default:
		return scoring.TopK(candidates, g.TopK), 0, nil
	}
}

func (e *Engine) rerankCrossEncoder(ctx context.Context, query string, candidates []scoring.DocScore, topK int) ([]scoring.DocScore, int, error) {
	if e.pairScorer == nil {
		logging.GetLogger().Debug(ctx, "no pair scorer configured, cross-encoder falls back to retrieval order")
		return scoring.TopK(candidates, topK), 0, nil
	}
	rescored := make([]scoring.DocScore, len(candidates))
	calls := 0
	for i, cand := range candidates {
		score, err := e.pairScorer.ScorePair(ctx, query, e.docText(cand.ID))
		calls++
		if err != nil {
			return nil, calls, err
		}
		rescored[i] = scoring.DocScore{ID: cand.ID, Score: score}
	}
	scoring.SortDescending(rescored)
	return scoring.TopK(rescored, topK), calls, nil
}

func (e *Engine) rerankPointwise(ctx context.Context, query string, candidates []scoring.DocScore, topK int) ([]scoring.DocScore, int, error) {
	if e.generator == nil {
		return scoring.TopK(candidates, topK), 0, nil
	}
	logger := logging.GetLogger()
	rescored := make([]scoring.DocScore, len(candidates))
	calls := 0
	for i, cand := range candidates {
		prompt := fmt.Sprintf(pointwisePrompt, query, truncateText(e.docText(cand.ID), promptDocLimit))
		out, err := e.generator.Generate(ctx, prompt)
		calls++
		if err != nil {
			return nil, calls, err
		}
		score, perr := strconv.ParseFloat(strings.TrimSpace(out), 64)
		if perr != nil {
			// Keep the retrieval score for this candidate; one garbled
			// verdict should not sink the whole query.
			logger.Warn(ctx, "unparseable pointwise verdict %q for doc %s", out, cand.ID)
			score = cand.Score
		}
		rescored[i] = scoring.DocScore{ID: cand.ID, Score: score}
	}
	scoring.SortDescending(rescored)
	return scoring.TopK(rescored, topK), calls, nil
}

func (e *Engine) rerankListwise(ctx context.Context, query string, candidates []scoring.DocScore, topK int) ([]scoring.DocScore, int, error) {
	if e.generator == nil {
		return scoring.TopK(candidates, topK), 0, nil
	}
	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, truncateText(e.docText(cand.ID), promptDocLimit))
	}
	out, err := e.generator.Generate(ctx, fmt.Sprintf(listwisePrompt, query, sb.String()))
	if err != nil {
		return nil, 1, err
	}

	order := parseOrdering(out, len(candidates))
	if len(order) == 0 {
		logging.GetLogger().Warn(ctx, "unparseable listwise ordering %q, keeping retrieval order", out)
		return scoring.TopK(candidates, topK), 1, nil
	}
	reordered := make([]scoring.DocScore, 0, len(candidates))
	seen := make(map[int]struct{}, len(order))
	for _, idx := range order {
		reordered = append(reordered, candidates[idx])
		seen[idx] = struct{}{}
	}
	// Candidates the model omitted keep their retrieval order at the tail.
	for i, cand := range candidates {
		if _, ok := seen[i]; !ok {
			reordered = append(reordered, cand)
		}
	}
	// Truncate in place: the model's ordering is authoritative, and the
	// stale retrieval scores must not re-sort it.
	if topK > 0 && topK < len(reordered) {
		reordered = reordered[:topK]
	}
	return reordered, 1, nil
}

// parseOrdering extracts 1-based candidate numbers from generator output,
// returning 0-based indices with duplicates and out-of-range values dropped.
func parseOrdering(out string, n int) []int {
	fields := strings.FieldsFunc(out, func(r rune) bool {
		return r < '0' || r > '9'
	})
	var order []int
	seen := make(map[int]struct{}, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > n {
			continue
		}
		if _, ok := seen[v-1]; ok {
			continue
		}
		seen[v-1] = struct{}{}
		order = append(order, v-1)
	}
	return order
}

func (e *Engine) docText(id string) string {
	if doc, ok := e.dataset.Document(id); ok {
		return doc.Content
	}
	return ""
}

// truncateText cuts s to at most limit bytes, backing off to a rune boundary
// so prompts never carry a split UTF-8 sequence.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
