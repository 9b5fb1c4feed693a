package evaluation

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/retrievolve/pkg/embedding"
	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// viewKey identifies one prepared corpus: an embedding model applied to one
// chunking of the documents. Genomes sharing a key share the view.
type viewKey struct {
	model     string
	chunking  genome.ChunkingStrategy
	chunkSize int
}

// corpusView is the corpus chunked, BM25-indexed, and optionally embedded.
// Built once per key and shared across evaluations; the two build steps are
// guarded separately so BM25-only genomes never pay for embeddings.
type corpusView struct {
	chunks   []Chunk
	chunkIDs []string
	parent   map[string]string
	bm25     *scoring.BM25Index

	vecOnce sync.Once
	vecErr  error
	vectors map[string][]float32
}

// view returns the memoized corpus view for the genome, building it on
// first use. Multi-vector retrieval over unchunked documents falls back to
// sentence chunks so there is more than one vector per document.
func (e *Engine) view(ctx context.Context, embedder embedding.Embedder, genes genome.Genes) (*corpusView, error) {
	chunking := genes.Chunking
	if genes.RetrievalMethod == genome.RetrievalMultiVector && chunking == genome.ChunkNone {
		chunking = genome.ChunkSentence
	}
	key := viewKey{model: embedder.ModelID(), chunking: chunking}
	if chunking == genome.ChunkFixedSize || chunking == genome.ChunkSemantic {
		key.chunkSize = genes.ChunkSize
	}

	e.mu.Lock()
	v, ok := e.views[key]
	if !ok {
		v = newCorpusView(ctx, e, key)
		e.views[key] = v
	}
	e.mu.Unlock()

	if needsDocVectors(genes) {
		if err := v.ensureVectors(ctx, embedder); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func newCorpusView(ctx context.Context, e *Engine, key viewKey) *corpusView {
	chunks := chunkDocuments(e.dataset.Documents, key.chunking, key.chunkSize)
	v := &corpusView{
		chunks:   chunks,
		chunkIDs: make([]string, len(chunks)),
		parent:   make(map[string]string, len(chunks)),
	}
	texts := make(map[string]string, len(chunks))
	for i, c := range chunks {
		v.chunkIDs[i] = c.ID
		v.parent[c.ID] = c.ParentID
		texts[c.ID] = c.Text
	}
	v.bm25 = scoring.NewBM25Index(texts, scoring.DefaultK1, scoring.DefaultB)
	logging.GetLogger().Debug(ctx,
		"built corpus view model=%s chunking=%s size=%d chunks=%d",
		key.model, key.chunking, key.chunkSize, len(chunks))
	return v
}

// ensureVectors embeds every chunk exactly once. A provider failure here is
// a hard error: without document vectors no dense genome sharing this view
// can be scored.
func (v *corpusView) ensureVectors(ctx context.Context, embedder embedding.Embedder) error {
	v.vecOnce.Do(func() {
		vectors := make(map[string][]float32, len(v.chunks))
		for _, c := range v.chunks {
			vec, err := embedder.Embed(ctx, c.Text)
			if err != nil {
				v.vecErr = errors.WithFields(
					errors.Wrap(err, errors.ProviderFailed, "failed to embed corpus chunk"),
					errors.Fields{"chunk": c.ID, "model": embedder.ModelID()})
				return
			}
			vectors[c.ID] = vec
		}
		v.vectors = vectors
	})
	return v.vecErr
}

// denseScores scores every chunk vector against the query vector, in chunk
// order so downstream stable sorts keep corpus order on ties.
func (v *corpusView) denseScores(queryVec []float32, score func(a, b []float32) float64) []scoring.DocScore {
	out := make([]scoring.DocScore, len(v.chunkIDs))
	for i, id := range v.chunkIDs {
		out[i] = scoring.DocScore{ID: id, Score: score(queryVec, v.vectors[id])}
	}
	return out
}

// collapseToParents maps a descending chunk ranking onto parent documents,
// keeping the highest-scoring chunk per parent. It also returns the winning
// chunk's vector per parent for vector-based reranking.
func (v *corpusView) collapseToParents(ranked []scoring.DocScore) ([]scoring.DocScore, map[string][]float32) {
	parents := make([]scoring.DocScore, 0, len(ranked))
	vecs := make(map[string][]float32)
	seen := make(map[string]bool, len(ranked))
	for _, ds := range ranked {
		parentID := v.parent[ds.ID]
		if seen[parentID] {
			continue
		}
		seen[parentID] = true
		parents = append(parents, scoring.DocScore{ID: parentID, Score: ds.Score})
		if vec, ok := v.vectors[ds.ID]; ok {
			vecs[parentID] = vec
		}
	}
	return parents, vecs
}
