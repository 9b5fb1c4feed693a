package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/retrievolve/pkg/config"
	"github.com/XiaoConstantine/retrievolve/pkg/dataset"
	"github.com/XiaoConstantine/retrievolve/pkg/embedding"
	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/evaluation"
	"github.com/XiaoConstantine/retrievolve/pkg/evolution"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
)

var runFlags struct {
	configPath  string
	corpusPath  string
	queriesPath string
	outputPath  string
	demo        bool
	seed        int64
	verbose     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization over a labeled dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOptimization(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.configPath, "config", "c", "", "YAML run configuration (defaults used when omitted)")
	runCmd.Flags().StringVar(&runFlags.corpusPath, "corpus", "", "corpus file, JSONL or Parquet (required)")
	runCmd.Flags().StringVar(&runFlags.queriesPath, "queries", "", "labeled queries file, JSONL (required)")
	runCmd.Flags().StringVarP(&runFlags.outputPath, "output", "o", "result.json", "result output file")
	runCmd.Flags().BoolVar(&runFlags.demo, "demo", false, "use the deterministic demo embedder instead of a real provider")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 0, "override the RNG seed from the config")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "debug logging")
	_ = runCmd.MarkFlagRequired("corpus")
	_ = runCmd.MarkFlagRequired("queries")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.seed != 0 {
		cfg.Run.Seed = runFlags.seed
	}

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}
	logger := logging.GetLogger()

	ds, err := loadDataset(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "loaded dataset: %d documents, %d queries", len(ds.Documents), len(ds.Queries))

	registry, closeCache, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	engineOpts := []evaluation.Option{
		evaluation.WithMetricK(cfg.Evaluation.MetricK),
		evaluation.WithScales(cfg.Evaluation.LatencyScale, cfg.Evaluation.CostScale),
	}
	if cfg.Generator.Enabled {
		gen, err := buildGenerator(cfg.Generator)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, evaluation.WithGenerator(gen))
	}

	engine, err := evaluation.NewEngine(ds, registry, cfg.Weights, engineOpts...)
	if err != nil {
		return err
	}
	opt, err := evolution.NewOptimizer(cfg.Run, cfg.Pools, engine)
	if err != nil {
		return err
	}

	result, err := opt.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info(ctx, "best strategy: %s (fitness %.4f, %d generations, %d on pareto front)",
		result.BestEver.Name(), result.BestEver.Fitness.Overall,
		len(result.History), len(result.ParetoFront))

	return writeResult(result, runFlags.outputPath)
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if runFlags.configPath != "" {
		return config.Load(runFlags.configPath)
	}
	if runFlags.demo {
		cfg.Embedding.Provider = "demo"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) error {
	outputs := []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(true))}
	if cfg.File != "" {
		fileOut, err := logging.NewFileOutput(cfg.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	severity := logging.ParseSeverity(cfg.Level)
	if runFlags.verbose {
		severity = logging.DEBUG
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: severity,
		Outputs:  outputs,
	}))
	return nil
}

func loadDataset(ctx context.Context) (*dataset.Dataset, error) {
	if strings.HasSuffix(runFlags.corpusPath, ".parquet") {
		docs, err := dataset.LoadParquetCorpus(ctx, runFlags.corpusPath)
		if err != nil {
			return nil, err
		}
		queries, err := dataset.LoadQueriesJSONL(runFlags.queriesPath)
		if err != nil {
			return nil, err
		}
		return dataset.New(docs, queries)
	}
	return dataset.LoadJSONL(runFlags.corpusPath, runFlags.queriesPath)
}

// buildRegistry wires one embedder per pooled model, all behind the
// configured cache. The returned closer flushes the cache backend.
func buildRegistry(cfg config.Config) (*embedding.Registry, func(), error) {
	cache, closeCache, err := buildCache(cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}

	registry := embedding.NewRegistry()
	for _, model := range cfg.Pools.EmbeddingModels {
		backend, err := buildEmbedder(cfg.Embedding, model)
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		if cache != nil {
			backend = embedding.NewCachingEmbedder(backend, cache)
		}
		registry.Register(backend)
	}
	return registry, closeCache, nil
}

func buildEmbedder(cfg config.EmbeddingConfig, model string) (embedding.Embedder, error) {
	provider := cfg.Provider
	if runFlags.demo {
		provider = "demo"
	}
	switch provider {
	case "demo":
		return embedding.NewDemoEmbedder(model, cfg.Dimensions), nil
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.BaseURL, model, cfg.Dimensions), nil
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, errors.WithFields(
				errors.New(errors.InvalidConfiguration, "missing embedding API key"),
				errors.Fields{"env": cfg.APIKeyEnv})
		}
		return embedding.NewOpenAIEmbedder(cfg.BaseURL, apiKey, model, cfg.Dimensions,
			cfg.CostPerCall, cfg.RequestsPerSecond), nil
	default:
		return nil, errors.New(errors.InvalidConfiguration, "unknown embedding provider")
	}
}

func buildCache(cfg config.EmbeddingConfig) (embedding.Cache, func(), error) {
	switch cfg.Cache {
	case "memory":
		return embedding.NewMemoryCache(), func() {}, nil
	case "sqlite":
		cache, err := embedding.NewSQLiteCache(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() { _ = cache.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func buildGenerator(cfg config.GeneratorConfig) (evaluation.TextGenerator, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfiguration, "missing generator API key"),
			errors.Fields{"env": cfg.APIKeyEnv})
	}
	return evaluation.NewAnthropicGenerator(apiKey, anthropic.Model(cfg.Model),
		cfg.MaxTokens, cfg.CostPerCall), nil
}

func writeResult(result *evolution.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
