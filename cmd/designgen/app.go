package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/designgen/internal/cache"
	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/config"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/embedding"
	"github.com/kalambet/designgen/internal/engine"
	"github.com/kalambet/designgen/internal/generate"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/library"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/ollama"
	"github.com/kalambet/designgen/internal/output"
	"github.com/kalambet/designgen/internal/pipeline"
	"github.com/kalambet/designgen/internal/proxy"
	"github.com/kalambet/designgen/internal/storage"
	"github.com/kalambet/designgen/internal/visual"
)

// loadConfig reads the configuration named by --config and installs the
// logger. validate reports every invalid setting at once.
func loadConfig(validate bool) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	setupLogging(cfg)
	if validate {
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// app holds the collaborators shared by the commands.
type app struct {
	cfg        config.Config
	store      *storage.Store
	engine     engine.Engine
	embedder   *embedding.Embedder
	classifier *classify.Classifier
	icons      *icons.Mapper
	scorer     *matching.Scorer
	indexer    *library.Indexer
}

// engineUsage says which local models a command needs. Embeddings are
// optional: without a reachable engine, records must carry their own vectors.
type engineUsage struct {
	generation bool
	review     bool
}

func openApp(ctx context.Context, cfg config.Config, use engineUsage) (*app, error) {
	cls, err := classify.Load(cfg.Classify.RulesFile)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "classify.rules_file", Reason: err.Error()}
	}
	mapper, err := icons.Load(cfg.Icons.MapFile)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "icons.map_file", Reason: err.Error()}
	}

	a := &app{cfg: cfg, classifier: cls, icons: mapper}
	client := ollama.New(cfg.Ollama.BaseURL)
	var required []string
	if use.generation && cfg.Generation.Provider == config.ProviderOllama {
		required = append(required, cfg.Generation.Model)
	}
	if use.review {
		required = append(required, cfg.Ollama.ReviewModel)
	}
	switch {
	case client.IsRunning(ctx):
		if err := engine.EnsureReady(ctx, client, os.Stderr, append(required, cfg.Ollama.EmbedModel)...); err != nil {
			return nil, err
		}
		a.engine = client
		a.embedder = embedding.New(client, cfg.Ollama.EmbedModel)
	case len(required) > 0:
		return nil, fmt.Errorf("%w (needed for %v)", engine.ErrNotRunning, required)
	default:
		slog.Warn("local inference engine not reachable; only records with precomputed embeddings can be matched", "base_url", cfg.Ollama.BaseURL)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store

	a.scorer, err = matching.NewScorer(store, cfg.Matching.Weights(), cfg.Matching.Thresholds(), cfg.Matching.MaxCandidates)
	if err != nil {
		store.Close()
		return nil, &config.ConfigurationError{Key: "matching", Reason: err.Error()}
	}
	a.indexer = library.New(store, a.libraryEmbedder(), cls, mapper)
	return a, nil
}

// libraryEmbedder returns the embedder as an interface that is nil when no
// engine is reachable.
func (a *app) libraryEmbedder() library.Embedder {
	if a.embedder == nil {
		return nil
	}
	return a.embedder
}

func (a *app) pipelineEmbedder() pipeline.Embedder {
	if a.embedder == nil {
		return nil
	}
	return a.embedder
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

func (a *app) generator() generate.Completer {
	if a.cfg.Generation.Provider == config.ProviderOllama {
		return &generate.Local{Engine: a.engine, Model: a.cfg.Generation.Model}
	}
	return &generate.OpenRouter{Client: proxy.NewClient(a.cfg.Generation.OpenRouterAPIKey), Model: a.cfg.Generation.Model}
}

// orchestrator wires a pipeline over the app's collaborators.
func (a *app) orchestrator(opts pipeline.Options) (*pipeline.Orchestrator, error) {
	c, err := cache.New(a.store, cache.DefaultSize)
	if err != nil {
		return nil, err
	}
	deps := pipeline.Deps{
		Classifier: a.classifier,
		Icons:      a.icons,
		Embedder:   a.pipelineEmbedder(),
		Scorer:     a.scorer,
		Library:    a.store,
		Generator:  generate.NewGenerator(a.generator(), generate.NewComposer(0), a.cfg.Generation.RequestsPerMinute),
		Writer:     output.NewWriter(a.cfg.Output.Dir, a.cfg.Output.CreateSubdirectories),
		Indexer:    a.indexer,
		Cache:      c,
		Runs:       a.store,
	}
	if opts.EnableVisualValidation && a.engine != nil {
		deps.Reviewer = visual.NewReviewer(a.engine, a.cfg.Ollama.ReviewModel)
	}
	return pipeline.New(deps, opts)
}

// readInputs decodes the component file at path.
func readInputs(path string) ([]design.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &output.IOError{Op: "read", Path: path, Err: err}
	}
	return design.Decode(data, path)
}
