// Package evolution drives the genetic search over retrieval-strategy
// genomes: tournament selection, uniform crossover, per-gene mutation,
// elitism, and stagnation-based early stopping, with fitness evaluation
// fanned out across a bounded worker pool.
package evolution

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
)

// Evaluator assigns fitness to a genome. Satisfied by *evaluation.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, g *genome.Genome) (*genome.FitnessResult, error)
}

// Config holds the evolutionary hyperparameters for one run.
type Config struct {
	PopulationSize  int     `json:"population_size" yaml:"population_size"`
	MaxGenerations  int     `json:"max_generations" yaml:"max_generations"`
	MutationRate    float64 `json:"mutation_rate" yaml:"mutation_rate"`
	CrossoverRate   float64 `json:"crossover_rate" yaml:"crossover_rate"`
	TournamentSize  int     `json:"tournament_size" yaml:"tournament_size"`
	EliteCount      int     `json:"elite_count" yaml:"elite_count"`
	StagnationLimit int     `json:"stagnation_limit" yaml:"stagnation_limit"`
	Concurrency     int     `json:"concurrency" yaml:"concurrency"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

// DefaultConfig returns hyperparameters that work for small to mid-size
// datasets.
func DefaultConfig() Config {
	return Config{
		PopulationSize:  20,
		MaxGenerations:  15,
		MutationRate:    0.15,
		CrossoverRate:   0.7,
		TournamentSize:  3,
		EliteCount:      2,
		StagnationLimit: 5,
		Concurrency:     4,
		Seed:            1,
	}
}

// Validate rejects hyperparameter combinations the loop cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return errors.New(errors.InvalidConfiguration, "population size must be at least 2")
	case c.MaxGenerations < 1:
		return errors.New(errors.InvalidConfiguration, "max generations must be at least 1")
	case c.MutationRate < 0 || c.MutationRate > 1:
		return errors.New(errors.InvalidConfiguration, "mutation rate must be in [0,1]")
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return errors.New(errors.InvalidConfiguration, "crossover rate must be in [0,1]")
	case c.TournamentSize < 1:
		return errors.New(errors.InvalidConfiguration, "tournament size must be at least 1")
	case c.EliteCount < 0 || c.EliteCount >= c.PopulationSize:
		return errors.New(errors.InvalidConfiguration, "elite count must be in [0, populationSize)")
	case c.StagnationLimit < 1:
		return errors.New(errors.InvalidConfiguration, "stagnation limit must be at least 1")
	case c.Concurrency < 1:
		return errors.New(errors.InvalidConfiguration, "concurrency must be at least 1")
	default:
		return nil
	}
}

// GenerationStats is one history row, recorded after each generation's
// evaluation pass.
type GenerationStats struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	AvgFitness  float64 `json:"avg_fitness"`
	// Fraction of distinct gene signatures in the population, in (0,1].
	Diversity       float64 `json:"diversity"`
	DegradedGenomes int     `json:"degraded_genomes"`
}

// Result is the outcome of one optimization run.
type Result struct {
	// Final population, sorted by overall fitness descending.
	Population []*genome.Genome  `json:"population"`
	BestEver   *genome.Genome    `json:"best_ever"`
	History    []GenerationStats `json:"history"`
	// Non-dominated genomes over (correctness, speed, cost), from every
	// genome evaluated during the run.
	ParetoFront []*genome.Genome `json:"pareto_front"`
}

// Optimizer runs the generational loop. Genetic operators draw from a
// single seeded source so runs are reproducible given the same seed and a
// deterministic evaluator.
type Optimizer struct {
	cfg       Config
	evaluator Evaluator
	pools     genome.Pools
	factory   *genome.Factory
	rng       *rand.Rand

	mu      sync.Mutex
	archive []*genome.Genome
}

// NewOptimizer validates the configuration and gene pools up front.
func NewOptimizer(cfg Config, pools genome.Pools, evaluator Evaluator) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := pools.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, errors.New(errors.InvalidConfiguration, "optimizer requires an evaluator")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Optimizer{
		cfg:       cfg,
		evaluator: evaluator,
		pools:     pools,
		factory:   genome.NewFactory(pools, rng),
		rng:       rng,
	}, nil
}

// Run executes the generational loop until maxGenerations, stagnation, or
// context cancellation. Cancellation is graceful: pending evaluations zero
// out as degraded and the partial result is still returned.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	logger := logging.GetLogger()
	population := o.factory.NewPopulation(o.cfg.PopulationSize)

	var (
		bestEver   *genome.Genome
		history    []GenerationStats
		stagnation int
	)

	for gen := 0; gen < o.cfg.MaxGenerations; gen++ {
		degraded := o.evaluatePopulation(ctx, population)
		sortByFitness(population)

		top := population[0]
		if bestEver == nil || overall(top) > overall(bestEver) {
			bestEver = top
			stagnation = 0
		} else {
			stagnation++
		}

		stats := GenerationStats{
			Generation:      gen,
			BestFitness:     overall(top),
			AvgFitness:      averageFitness(population),
			Diversity:       diversity(population),
			DegradedGenomes: degraded,
		}
		history = append(history, stats)
		logger.Info(ctx, "generation %d: best=%.4f avg=%.4f diversity=%.2f degraded=%d best_genome=%s",
			gen, stats.BestFitness, stats.AvgFitness, stats.Diversity, degraded, top.Name())

		if ctx.Err() != nil {
			logger.Warn(ctx, "run interrupted at generation %d, returning partial result", gen)
			break
		}
		if stagnation >= o.cfg.StagnationLimit {
			logger.Info(ctx, "stopping: no new best fitness for %d generations", stagnation)
			break
		}
		if gen == o.cfg.MaxGenerations-1 {
			break
		}

		population = o.nextGeneration(population)
	}

	return &Result{
		Population:  population,
		BestEver:    bestEver,
		History:     history,
		ParetoFront: ParetoFront(o.archive),
	}, nil
}

// evaluatePopulation assigns fitness to every genome that lacks one, using
// a bounded worker pool. Carried-over elites keep their fitness. Returns the
// number of genomes whose fitness is degraded (evaluation error, timeout,
// or partial query failures).
func (o *Optimizer) evaluatePopulation(ctx context.Context, population []*genome.Genome) int {
	logger := logging.GetLogger()

	p := pool.New().WithMaxGoroutines(o.cfg.Concurrency)
	var (
		mu       sync.Mutex
		degraded int
	)
	for _, g := range population {
		if g.Fitness != nil {
			if g.Fitness.DegradedQueryCount > 0 {
				mu.Lock()
				degraded++
				mu.Unlock()
			}
			continue
		}
		g := g
		p.Go(func() {
			fit, err := o.evaluator.Evaluate(ctx, g)
			if err != nil {
				// Zero fitness keeps the genome sortable; -1 marks an
				// evaluation that failed outright rather than per-query.
				logger.Warn(ctx, "evaluation failed for genome %s: %v", g.Name(), err)
				fit = &genome.FitnessResult{DegradedQueryCount: -1}
			}
			g.Fitness = fit

			mu.Lock()
			if fit.DegradedQueryCount != 0 {
				degraded++
			}
			o.archive = append(o.archive, g)
			mu.Unlock()
		})
	}
	p.Wait()
	return degraded
}

// nextGeneration produces a same-size population: elites carried over with
// their fitness, the rest bred by tournament selection, crossover, and
// mutation. Children always start with nil fitness.
func (o *Optimizer) nextGeneration(population []*genome.Genome) []*genome.Genome {
	next := make([]*genome.Genome, 0, o.cfg.PopulationSize)
	next = append(next, population[:o.cfg.EliteCount]...)

	for len(next) < o.cfg.PopulationSize {
		parent := o.tournamentSelect(population)

		var child *genome.Genome
		if o.rng.Float64() < o.cfg.CrossoverRate {
			coParent := o.tournamentSelect(population)
			genes := genome.Crossover(parent.Genes, coParent.Genes, o.rng)
			genes = o.pools.Mutate(genes, o.cfg.MutationRate, o.rng)
			child = parent.Child(genes, coParent)
		} else {
			genes := o.pools.Mutate(parent.Genes, o.cfg.MutationRate, o.rng)
			child = parent.Child(genes, nil)
		}
		next = append(next, child)
	}
	return next
}

// tournamentSelect draws tournamentSize genomes uniformly (with
// replacement) and returns the fittest.
func (o *Optimizer) tournamentSelect(population []*genome.Genome) *genome.Genome {
	best := population[o.rng.Intn(len(population))]
	for i := 1; i < o.cfg.TournamentSize; i++ {
		challenger := population[o.rng.Intn(len(population))]
		if overall(challenger) > overall(best) {
			best = challenger
		}
	}
	return best
}

// ParetoFront returns the genomes not strictly dominated by any other over
// (correctness, speed, cost). A dominates B when A is >= on all three
// objectives and strictly greater on at least one.
func ParetoFront(genomes []*genome.Genome) []*genome.Genome {
	var front []*genome.Genome
	for _, candidate := range genomes {
		if candidate.Fitness == nil || candidate.Fitness.DegradedQueryCount < 0 {
			continue
		}
		dominated := false
		for _, other := range genomes {
			if other == candidate || other.Fitness == nil {
				continue
			}
			if dominates(other.Fitness, candidate.Fitness) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, candidate)
		}
	}
	sort.SliceStable(front, func(i, j int) bool {
		return front[i].Fitness.Overall > front[j].Fitness.Overall
	})
	return front
}

func dominates(a, b *genome.FitnessResult) bool {
	if a.Correctness < b.Correctness || a.Speed < b.Speed || a.Cost < b.Cost {
		return false
	}
	return a.Correctness > b.Correctness || a.Speed > b.Speed || a.Cost > b.Cost
}

func sortByFitness(population []*genome.Genome) {
	sort.SliceStable(population, func(i, j int) bool {
		return overall(population[i]) > overall(population[j])
	})
}

func overall(g *genome.Genome) float64 {
	if g.Fitness == nil {
		return 0
	}
	return g.Fitness.Overall
}

func averageFitness(population []*genome.Genome) float64 {
	if len(population) == 0 {
		return 0
	}
	sum := 0.0
	for _, g := range population {
		sum += overall(g)
	}
	return sum / float64(len(population))
}

func diversity(population []*genome.Genome) float64 {
	if len(population) == 0 {
		return 0
	}
	signatures := make(map[string]struct{}, len(population))
	for _, g := range population {
		signatures[g.Genes.Signature()] = struct{}{}
	}
	return float64(len(signatures)) / float64(len(population))
}
