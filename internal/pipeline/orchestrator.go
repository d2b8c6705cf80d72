// Package pipeline runs component descriptions through the generation
// stages, tracking per-stage status, caching successful results and isolating
// failures to the component they belong to.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/designgen/internal/cache"
	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/config"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/generate"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/library"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/output"
	"github.com/kalambet/designgen/internal/storage"
	"github.com/kalambet/designgen/internal/visual"
)

// Options control stage selection, retries and batching.
type Options struct {
	EnableCaching          bool
	EnableSemanticMatching bool
	EnableVisualValidation bool
	MaxRetries             int
	RetryDelay             time.Duration
	Timeout                time.Duration
	Concurrency            int
	SkipStages             []string
	AutoIndex              bool

	// ConfigHash identifies the output-affecting configuration in cache keys.
	ConfigHash string
}

// OptionsFromConfig maps the pipeline keys of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		EnableCaching:          cfg.Pipeline.EnableCaching,
		EnableSemanticMatching: cfg.Pipeline.EnableSemanticMatching,
		EnableVisualValidation: cfg.Pipeline.EnableVisualValidation,
		MaxRetries:             cfg.Pipeline.MaxRetries,
		RetryDelay:             time.Duration(cfg.Pipeline.RetryDelayMs) * time.Millisecond,
		Timeout:                time.Duration(cfg.Pipeline.TimeoutMs) * time.Millisecond,
		Concurrency:            cfg.Pipeline.Concurrency,
		SkipStages:             cfg.Pipeline.SkipStages,
		AutoIndex:              cfg.Library.AutoIndex,
		ConfigHash:             cfg.Hash(),
	}
}

// Embedder produces the semantic vector of a description.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces code. *generate.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, s generate.Spec) (generate.Output, error)
}

// Reviewer scores generated code against the design. *visual.Reviewer
// implements it.
type Reviewer interface {
	Review(ctx context.Context, c *design.Component, code string) (visual.Review, error)
}

// Library is the component store seen by the match stage. *storage.Store
// implements it.
type Library interface {
	matching.Library
	ListComponents(ctx context.Context, f storage.ListFilter) ([]storage.Component, error)
}

// RunRecorder persists batch summaries. *storage.Store implements it.
type RunRecorder interface {
	SaveRun(ctx context.Context, r storage.Run) error
}

// Deps are the collaborators the stages call. Embedder is needed only for
// records without a precomputed semantic vector; Reviewer only when visual
// validation is enabled. Indexer, Cache and Runs are optional.
type Deps struct {
	Classifier *classify.Classifier
	Icons      *icons.Mapper
	Embedder   Embedder
	Scorer     *matching.Scorer
	Library    Library
	Generator  Generator
	Reviewer   Reviewer
	Writer     *output.Writer
	Indexer    *library.Indexer
	Cache      *cache.Cache
	Runs       RunRecorder
}

// Orchestrator runs components through the stages.
type Orchestrator struct {
	deps    Deps
	opts    Options
	skipped map[string]string
}

// New validates the wiring against opts. Problems are reported as
// *config.ConfigurationError before any component runs.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	skipped := make(map[string]string)
	for _, name := range opts.SkipStages {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !slices.ContainsFunc(stages, func(s stage) bool { return s.name == name }) {
			return nil, &config.ConfigurationError{Key: "pipeline.skip_stages", Reason: fmt.Sprintf("unknown stage %q", name)}
		}
		skipped[name] = "listed in pipeline.skip_stages"
	}
	if !opts.EnableSemanticMatching {
		skipped[StageMatch] = "semantic matching disabled"
	}
	if !opts.EnableVisualValidation {
		skipped[StageVisualValidate] = "visual validation disabled"
	}

	enabled := func(name string) bool {
		_, off := skipped[name]
		return !off
	}
	var problems []error
	require := func(ok bool, key, reason string) {
		if !ok {
			problems = append(problems, &config.ConfigurationError{Key: key, Reason: reason})
		}
	}
	require(deps.Classifier != nil, "classify.rules_file", "no classifier configured")
	require(deps.Icons != nil, "icons.map_file", "no icon map configured")
	require(deps.Generator != nil || !enabled(StageGenerate), "generation.provider", "no generator configured")
	require(deps.Writer != nil || !enabled(StagePersistOutput), "output.dir", "no output writer configured")
	require((deps.Scorer != nil && deps.Library != nil) || !enabled(StageMatch), "pipeline.enable_semantic_matching", "matching enabled without a component library")
	require(deps.Reviewer != nil || !enabled(StageVisualValidate), "pipeline.enable_visual_validation", "visual validation enabled without a reviewer")
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{deps: deps, opts: opts, skipped: skipped}, nil
}

// Run processes one component. Successful results are served from and
// stored in the cache when caching is enabled.
func (o *Orchestrator) Run(ctx context.Context, in design.Input) Outcome {
	start := time.Now()

	var key string
	if o.deps.Cache != nil && o.opts.EnableCaching {
		if h, err := design.ContentHash(in.Raw); err == nil {
			key = cache.Fingerprint(h, o.opts.ConfigHash)
			if r, ok := o.cached(ctx, key); ok {
				slog.Debug("cache hit", "component_id", in.ID)
				return Outcome{Result: r, Cached: true, Elapsed: time.Since(start)}
			}
		}
	}

	r := o.execute(ctx, in)
	if key != "" && r.Success {
		if b, err := json.Marshal(r); err != nil {
			slog.Warn("encoding result for cache", "component_id", in.ID, "error", err)
		} else if err := o.deps.Cache.Put(ctx, key, r.ComponentID, b); err != nil {
			slog.Warn("storing cache entry", "component_id", in.ID, "error", err)
		}
	}
	return Outcome{Result: r, Elapsed: time.Since(start)}
}

func (o *Orchestrator) cached(ctx context.Context, key string) (Result, bool) {
	b, ok, err := o.deps.Cache.Get(ctx, key)
	if err != nil {
		slog.Warn("reading cache", "error", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		slog.Warn("discarding unreadable cache entry", "fingerprint", key, "error", err)
		return Result{}, false
	}
	return r, true
}

// execute runs the stages in order. The first failure stops the run and
// leaves the remaining stages pending.
func (o *Orchestrator) execute(ctx context.Context, in design.Input) Result {
	start := time.Now()
	r := Result{ComponentID: in.ID, Stages: make([]StageRecord, len(stages))}
	for i, s := range stages {
		r.Stages[i] = StageRecord{Name: s.name, Status: StatusPending}
	}
	st := &state{input: in, result: &r}
	statuses := make(map[string]Status, len(stages))

	for i, s := range stages {
		rec := &r.Stages[i]
		if reason := o.skipReason(s, statuses); reason != "" {
			rec.Status = StatusSkipped
			rec.SkipReason = reason
			statuses[s.name] = StatusSkipped
			continue
		}

		rec.Status = StatusRunning
		began := time.Now()
		rec.StartTime = &began

		retries := 0
		if s.retryable {
			retries = o.opts.MaxRetries
		}
		var out any
		var warns []string
		attempts, err := attempt(ctx, s.name, retries, o.opts.RetryDelay, o.opts.Timeout, func(actx context.Context) error {
			var err error
			out, warns, err = s.run(o, actx, st)
			return err
		})

		ended := time.Now()
		rec.EndTime = &ended
		rec.Attempts = attempts
		rec.Warnings = warns
		for _, w := range warns {
			r.Warnings = append(r.Warnings, s.name+": "+w)
		}
		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			rec.ErrorKind = Classify(err)
			statuses[s.name] = StatusFailed
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", s.name, err))
			slog.Warn("stage failed", "component_id", in.ID, "stage", s.name, "attempts", attempts, "error", err)
			break
		}
		if out != nil {
			b, err := json.Marshal(out)
			if err != nil {
				slog.Warn("encoding stage result", "component_id", in.ID, "stage", s.name, "error", err)
			}
			rec.Result = b
		}
		rec.Status = StatusCompleted
		statuses[s.name] = StatusCompleted
		slog.Debug("stage completed", "component_id", in.ID, "stage", s.name, "duration", ended.Sub(began))
	}

	r.Success = len(r.Errors) == 0
	r.Duration = time.Since(start)
	return r
}

func (o *Orchestrator) skipReason(s stage, statuses map[string]Status) string {
	if reason, ok := o.skipped[s.name]; ok {
		return reason
	}
	for _, dep := range s.deps {
		if statuses[dep] == StatusSkipped {
			return fmt.Sprintf("dependency %s was skipped", dep)
		}
	}
	return ""
}

// RunBatch processes inputs with bounded parallelism and persists the batch
// summary. Outcomes are reported in input order.
func (o *Orchestrator) RunBatch(ctx context.Context, inputs []design.Input) BatchSummary {
	sum := BatchSummary{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), Total: len(inputs)}
	outcomes := make([]Outcome, len(inputs))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			outcomes[i] = o.Run(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	sum.FinishedAt = time.Now().UTC()
	sum.DurationMs = sum.FinishedAt.Sub(sum.StartedAt).Milliseconds()
	sum.Outcomes = outcomes
	sum.Components = make([]ComponentSummary, len(outcomes))
	for i, oc := range outcomes {
		r := oc.Result
		cs := ComponentSummary{
			ComponentID: r.ComponentID,
			Name:        r.Name,
			Success:     r.Success,
			Cached:      oc.Cached,
			ElapsedMs:   oc.Elapsed.Milliseconds(),
			Errors:      r.Errors,
			Warnings:    len(r.Warnings),
			Outputs:     r.Outputs,
		}
		for _, s := range r.Stages {
			if s.Status == StatusFailed {
				cs.FailedStage = s.Name
			}
		}
		if r.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		if oc.Cached {
			sum.CacheHits++
		}
		sum.CumulativeMs += cs.ElapsedMs
		sum.Components[i] = cs
	}

	o.persistSummary(ctx, &sum)
	slog.Info("batch complete", "run_id", sum.RunID, "total", sum.Total, "succeeded", sum.Succeeded, "failed", sum.Failed, "cache_hits", sum.CacheHits)
	return sum
}

func (o *Orchestrator) persistSummary(ctx context.Context, sum *BatchSummary) {
	if o.deps.Writer != nil {
		path, err := o.deps.Writer.WriteSummary(sum)
		if err != nil {
			sum.Errors = append(sum.Errors, err.Error())
			slog.Warn("writing batch summary", "error", err)
		} else {
			sum.SummaryPath = path
		}
	}
	if o.deps.Runs == nil {
		return
	}
	b, err := json.Marshal(sum)
	if err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		return
	}
	err = o.deps.Runs.SaveRun(ctx, storage.Run{
		ID:          sum.RunID,
		StartedAt:   sum.StartedAt,
		FinishedAt:  sum.FinishedAt,
		Total:       sum.Total,
		Succeeded:   sum.Succeeded,
		Failed:      sum.Failed,
		CacheHits:   sum.CacheHits,
		SummaryJSON: string(b),
	})
	if err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		slog.Warn("recording batch run", "run_id", sum.RunID, "error", err)
	}
}
