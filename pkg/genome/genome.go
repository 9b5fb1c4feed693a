package genome

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FitnessResult holds the per-objective breakdown assigned to a genome by
// the fitness evaluation engine. It is never self-assigned by the genome.
type FitnessResult struct {
	// Objective subscores, each in [0,1].
	Correctness float64 `json:"correctness"`
	Speed       float64 `json:"speed"`
	Cost        float64 `json:"cost"`
	// Weighted sum of the three subscores.
	Overall float64 `json:"overall"`

	// Raw ranking-metric aggregates behind Correctness.
	NDCG    float64 `json:"ndcg"`
	Recall  float64 `json:"recall"`
	MRR     float64 `json:"mrr"`
	HitRate float64 `json:"hit_rate"`

	MeanLatency time.Duration `json:"mean_latency_ns"`
	MeanCost    float64       `json:"mean_cost_usd"`

	// Queries excluded from the aggregates because their evaluation
	// failed. Non-zero means the fitness value is low-confidence.
	DegradedQueryCount int `json:"degraded_query_count"`

	// Per-tag overall breakdowns (query type/difficulty), reporting only.
	ByTag map[string]float64 `json:"by_tag,omitempty"`
}

// Genome is one candidate retrieval strategy. Genes are read-only after
// creation; genetic operators derive new genomes instead of mutating.
type Genome struct {
	ID         string         `json:"id"`
	Generation int            `json:"generation"`
	ParentIDs  []string       `json:"parent_ids,omitempty"`
	Genes      Genes          `json:"genes"`
	Fitness    *FitnessResult `json:"fitness,omitempty"`
}

// New creates a fresh genome with a unique ID and no fitness.
func New(genes Genes, generation int, parentIDs ...string) *Genome {
	return &Genome{
		ID:         uuid.New().String(),
		Generation: generation,
		ParentIDs:  parentIDs,
		Genes:      genes,
	}
}

// Child derives a new genome from this one with the given genes, one
// generation later, with fitness cleared.
func (g *Genome) Child(genes Genes, coParent *Genome) *Genome {
	parents := []string{g.ID}
	if coParent != nil && coParent.ID != g.ID {
		parents = append(parents, coParent.ID)
	}
	return New(genes, g.Generation+1, parents...)
}

// Clone returns a copy sharing the same ID, genes and fitness. Used for
// elitism, where an evaluated genome carries over unchanged.
func (g *Genome) Clone() *Genome {
	copied := *g
	if g.ParentIDs != nil {
		copied.ParentIDs = append([]string(nil), g.ParentIDs...)
	}
	if g.Fitness != nil {
		f := *g.Fitness
		if g.Fitness.ByTag != nil {
			f.ByTag = make(map[string]float64, len(g.Fitness.ByTag))
			for k, v := range g.Fitness.ByTag {
				f.ByTag[k] = v
			}
		}
		copied.Fitness = &f
	}
	return &copied
}

// Name returns a short human-readable description of the strategy.
func (g *Genome) Name() string {
	name := fmt.Sprintf("%s+%s", g.Genes.EmbeddingModel, g.Genes.RetrievalMethod)
	if g.Genes.QueryProcessor != QueryRaw {
		name += "+" + string(g.Genes.QueryProcessor)
	}
	if g.Genes.Chunking != ChunkNone {
		name += "+" + string(g.Genes.Chunking)
	}
	if g.Genes.Reranker != RerankNone {
		name += "+" + string(g.Genes.Reranker)
	}
	return fmt.Sprintf("%s@k%d", name, g.Genes.TopK)
}

// String renders the genome as JSON for logs and reports.
func (g *Genome) String() string {
	data, err := json.Marshal(g)
	if err != nil {
		return g.ID
	}
	return string(data)
}
