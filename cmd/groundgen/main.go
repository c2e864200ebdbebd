package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sgqa/groundgen/internal/dataset"
	"github.com/sgqa/groundgen/internal/eval"
	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
	"github.com/sgqa/groundgen/internal/kb/kbcache"
	"github.com/sgqa/groundgen/internal/platform/envutil"
	"github.com/sgqa/groundgen/internal/platform/logger"
	"github.com/sgqa/groundgen/internal/platform/neo4jdb"
	"github.com/sgqa/groundgen/internal/platform/tracing"
	"github.com/sgqa/groundgen/internal/staged"
)

type runConfig struct {
	Dataset struct {
		Paths  dataset.Paths  `yaml:"paths"`
		Params dataset.Params `yaml:"params"`
		Seed   int64          `yaml:"seed"`
	} `yaml:"dataset"`
	Engine struct {
		PostProcess                   string  `yaml:"post_process"`
		F1AcceptThreshold             float64 `yaml:"f1_accept_threshold"`
		RestrictBeforeExpandThreshold float64 `yaml:"restrict_before_expand_threshold"`
		MaxIterations                 int     `yaml:"max_iterations"`
	} `yaml:"engine"`
	Run struct {
		Concurrency int    `yaml:"concurrency"`
		Output      string `yaml:"output"`
	} `yaml:"run"`
}

func loadConfig(path string) (runConfig, error) {
	var cfg runConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Run.Concurrency <= 0 {
		cfg.Run.Concurrency = 4
	}
	if cfg.Run.Output == "" {
		cfg.Run.Output = "generated_graphs.json"
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "groundgen.yaml", "path to the run configuration")
	mode := flag.String("mode", "gold", "generation mode: gold or nogold")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	if shutdown := tracing.Init(ctx, log, "groundgen"); shutdown != nil {
		defer func() { _ = shutdown(ctx) }()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("config load failed", "error", err)
	}

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("neo4j init failed", "error", err)
	}
	defer func() { _ = neo.Close(ctx) }()

	var access kb.Access = kb.NewNeo4jAccess(neo, log)
	var clearer staged.CacheClearer
	if envutil.String("REDIS_ADDR", "") != "" {
		cache, err := kbcache.NewFromEnv(access, log)
		if err != nil {
			log.Fatal("redis cache init failed", "error", err)
		}
		defer func() { _ = cache.Close() }()
		access = cache
		clearer = cache
	} else {
		log.Warn("REDIS_ADDR unset, running without a KB request cache")
	}

	gen := staged.New(staged.Deps{
		KB:        access,
		Whitelist: kb.DefaultWhitelist(),
		Cache:     clearer,
		Log:       log,
	}, staged.Options{
		PostProcess:                   staged.PostProcessMode(cfg.Engine.PostProcess),
		F1AcceptThreshold:             cfg.Engine.F1AcceptThreshold,
		RestrictBeforeExpandThreshold: cfg.Engine.RestrictBeforeExpandThreshold,
		MaxIterations:                 cfg.Engine.MaxIterations,
	})

	data, err := dataset.Load(cfg.Dataset.Paths, cfg.Dataset.Params, cfg.Dataset.Seed)
	if err != nil {
		log.Fatal("dataset load failed", "error", err)
	}

	runID := uuid.New().String()
	log.Info("starting generation", "run_id", runID, "mode", *mode,
		"questions", len(data.TrainQuestions()), "concurrency", cfg.Run.Concurrency)

	switch *mode {
	case "gold":
		err = runGold(ctx, log, gen, data, cfg)
	case "nogold":
		err = runNoGold(ctx, log, gen, data, cfg)
	default:
		log.Fatal("unknown mode", "mode", *mode)
	}
	if err != nil {
		log.Fatal("generation failed", "error", err)
	}
	log.Info("generation finished", "run_id", runID, "output", cfg.Run.Output)
}

// ungroundedFromQuestion builds the starting graph: question tokens plus
// the main entity mention when the dataset provides one.
func ungroundedFromQuestion(q dataset.Question) *graph.Graph {
	g := &graph.Graph{
		Tokens:   strings.Fields(strings.ToLower(q.Utterance)),
		Entities: []graph.EntityMention{},
		EdgeSet:  []graph.Edge{},
	}
	if mention, ok := dataset.MainEntityFromQuestion(q); ok {
		g.Entities = append(g.Entities, mention)
	}
	return g
}

// runGold generates scored graph sets for every training question. Runs
// are independent and share the request cache, so they fan out safely.
func runGold(ctx context.Context, log *logger.Logger, gen *staged.Generator, data *dataset.WebQuestions, cfg runConfig) error {
	questions := data.TrainQuestions()
	results := make([][]staged.ScoredGraph, len(questions))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Run.Concurrency)
	for i, q := range questions {
		group.Go(func() error {
			gold := eval.Gold(dataset.AnswersFromQuestion(q))
			generated, err := gen.GenerateWithGold(gctx, ungroundedFromQuestion(q), gold)
			if err != nil {
				return fmt.Errorf("question %d: %w", q.Index, err)
			}
			results[i] = generated
			log.Debug("question done", "index", q.Index, "graphs", len(generated))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return writeJSON(cfg.Run.Output, results)
}

// runNoGold enumerates whitelist-valid groundings for every training
// question without answer supervision. Sequential: each run clears the
// shared request cache when it completes.
func runNoGold(ctx context.Context, log *logger.Logger, gen *staged.Generator, data *dataset.WebQuestions, cfg runConfig) error {
	questions := data.TrainQuestions()
	results := make([][]*graph.Graph, len(questions))
	for i, q := range questions {
		generated, err := gen.GenerateWithoutGold(ctx, ungroundedFromQuestion(q), staged.DefaultActions())
		if err != nil {
			return fmt.Errorf("question %d: %w", q.Index, err)
		}
		results[i] = generated
		log.Debug("question done", "index", q.Index, "graphs", len(generated))
	}
	return writeJSON(cfg.Run.Output, results)
}

func writeJSON(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
