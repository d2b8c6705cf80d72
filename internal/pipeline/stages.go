package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/generate"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/library"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/output"
	"github.com/kalambet/designgen/internal/quality"
	"github.com/kalambet/designgen/internal/schema"
	"github.com/kalambet/designgen/internal/storage"
	"github.com/kalambet/designgen/internal/visual"
)

// stage is one step of a run. run returns a JSON-encodable result and any
// warnings.
type stage struct {
	name      string
	deps      []string
	retryable bool
	run       func(o *Orchestrator, ctx context.Context, st *state) (any, []string, error)
}

var stages = []stage{
	{name: StageParse, run: (*Orchestrator).parse},
	{name: StageClassify, deps: []string{StageParse}, run: (*Orchestrator).classify},
	{name: StageExtractIcons, deps: []string{StageParse}, run: (*Orchestrator).extractIcons},
	{name: StageSemanticMap, deps: []string{StageClassify, StageExtractIcons}, run: (*Orchestrator).semanticMap},
	{name: StageMatch, deps: []string{StageSemanticMap}, run: (*Orchestrator).match},
	{name: StageGenerate, deps: []string{StageSemanticMap}, retryable: true, run: (*Orchestrator).generate},
	{name: StageValidate, deps: []string{StageGenerate}, run: (*Orchestrator).validate},
	{name: StageVisualValidate, deps: []string{StageGenerate}, retryable: true, run: (*Orchestrator).visualValidate},
	{name: StagePersistOutput, deps: []string{StageValidate}, run: (*Orchestrator).persist},
}

// StageNames lists the stages in execution order.
func StageNames() []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// state carries values between the stages of one run.
type state struct {
	input  design.Input
	result *Result

	comp     *design.Component
	cls      classify.Result
	icons    icons.Extraction
	mapping  schema.Mapping
	semantic []float32
	semModel string
	visual   []float32
	report   *matching.Report
	hint     *generate.Hint
	gen      generate.Output
	quality  quality.Report
	review   *visual.Review
}

type parseResult struct {
	ComponentID string            `json:"component_id"`
	Name        string            `json:"name"`
	ContentHash string            `json:"content_hash"`
	Layout      design.Normalized `json:"layout"`
}

func (o *Orchestrator) parse(_ context.Context, st *state) (any, []string, error) {
	c, err := design.Parse(st.input)
	if err != nil {
		return nil, nil, err
	}
	st.comp = c
	st.result.Name = c.Name()
	return parseResult{ComponentID: c.ID(), Name: c.Name(), ContentHash: c.ContentHash, Layout: c.Normalized}, nil, nil
}

func (o *Orchestrator) classify(_ context.Context, st *state) (any, []string, error) {
	st.cls = o.deps.Classifier.Classify(st.comp)
	var warns []string
	if st.cls.RuleIndex < 0 {
		warns = append(warns, fmt.Sprintf("no rule matched, using %q", st.cls.Tag))
	}
	return st.cls, warns, nil
}

func (o *Orchestrator) extractIcons(_ context.Context, st *state) (any, []string, error) {
	st.icons = o.deps.Icons.Extract(st.comp)
	var warns []string
	for _, key := range st.icons.Unmapped {
		warns = append(warns, fmt.Sprintf("unmapped icon %q", key))
	}
	return st.icons, warns, nil
}

type mapResult struct {
	Target           schema.Target `json:"target"`
	Description      string        `json:"description"`
	VisualDimensions int           `json:"visual_dimensions"`
}

func (o *Orchestrator) semanticMap(_ context.Context, st *state) (any, []string, error) {
	st.mapping = schema.Map(st.comp, st.cls, st.icons)
	st.visual = st.mapping.Visual
	if emb := st.comp.Record.Embeddings; emb != nil {
		if len(emb.Visual) > 0 {
			st.visual = emb.Visual
		}
		st.semantic = emb.Semantic
	}
	return mapResult{Target: st.mapping.Target, Description: st.mapping.Description, VisualDimensions: len(st.visual)}, nil, nil
}

type matchResult struct {
	Tier       matching.Tier     `json:"tier"`
	Top        *matching.Result  `json:"top,omitempty"`
	Candidates []matching.Result `json:"candidates,omitempty"`
	Hint       *generate.Hint    `json:"hint,omitempty"`
	Degraded   bool              `json:"degraded,omitempty"`
}

// match looks up reference components. A dimension mismatch or an empty
// result degrades to an unassisted run instead of failing.
func (o *Orchestrator) match(ctx context.Context, st *state) (any, []string, error) {
	if len(st.semantic) == 0 {
		if o.deps.Embedder == nil {
			return nil, nil, errors.New("no semantic embedding supplied and no embedder configured")
		}
		vec, err := o.deps.Embedder.Embed(ctx, st.mapping.Description)
		if err != nil {
			return nil, nil, external("embedding", err)
		}
		st.semantic, st.semModel = vec, o.deps.Embedder.Model()
	}

	// Earlier versions of this component are in the library when it was
	// indexed by a previous run; they must not serve as its own reference.
	own, err := o.deps.Library.ListComponents(ctx, storage.ListFilter{BaseID: st.comp.ID()})
	if err != nil {
		return nil, nil, fmt.Errorf("listing versions of %s: %w", st.comp.ID(), err)
	}
	exclude := make([]string, len(own))
	for i, c := range own {
		exclude[i] = c.ID
	}

	rep, err := o.deps.Scorer.Match(ctx, matching.Query{Semantic: st.semantic, Visual: st.visual, ExcludeIDs: exclude})
	var dm *storage.DimensionMismatchError
	if errors.As(err, &dm) {
		return matchResult{Tier: matching.TierNone, Degraded: true}, []string{err.Error() + "; continuing without reference"}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	st.report = &rep

	res := matchResult{Tier: rep.Tier, Top: rep.Top, Candidates: rep.Results}
	if rep.NoCandidate() {
		return res, []string{matching.ErrNoCandidate.Error()}, nil
	}

	top := rep.Top
	hint := &generate.Hint{
		ComponentID: top.ComponentID,
		Name:        top.Name,
		Type:        top.ComponentType,
		Tier:        string(top.Tier),
		Score:       top.FinalScore,
	}
	var warns []string
	c, err := o.deps.Library.GetComponent(ctx, top.ComponentID)
	switch {
	case err == nil:
		hint.Code, _ = c.Metadata[library.MetaCode].(string)
	case errors.Is(err, storage.ErrNotFound):
		warns = append(warns, fmt.Sprintf("reference %s disappeared before it could be read", top.ComponentID))
	default:
		return nil, nil, fmt.Errorf("loading reference %s: %w", top.ComponentID, err)
	}
	st.hint = hint
	res.Hint = hint
	return res, warns, nil
}

type generateResult struct {
	Model      string `json:"model"`
	DurationMs int64  `json:"duration_ms"`
	UsedHint   bool   `json:"used_hint"`
	Lines      int    `json:"lines"`
}

func (o *Orchestrator) generate(ctx context.Context, st *state) (any, []string, error) {
	out, err := o.deps.Generator.Generate(ctx, generate.Spec{
		Name:        st.comp.Name(),
		Description: st.mapping.Description,
		Target:      st.mapping.Target,
		Icons:       st.icons,
		Layout:      st.comp.Normalized,
		Hint:        st.hint,
	})
	if err != nil {
		return nil, nil, external("generation", err)
	}
	st.gen = out
	st.result.Code = out.Code
	return generateResult{
		Model:      out.Model,
		DurationMs: out.Duration.Milliseconds(),
		UsedHint:   out.UsedHint,
		Lines:      countLines(out.Code),
	}, nil, nil
}

// errUnbalanced fails validation: code whose delimiters do not balance
// cannot compile and is not persisted.
var errUnbalanced = errors.New("generated code has unbalanced delimiters")

func (o *Orchestrator) validate(_ context.Context, st *state) (any, []string, error) {
	st.quality = quality.Check(quality.Input{Name: st.comp.Name(), Code: st.gen.Code, Symbols: st.icons.Symbols()})
	if !st.quality.Checklist.BalancedBrackets {
		return nil, nil, errUnbalanced
	}
	return st.quality, st.quality.Warnings, nil
}

func (o *Orchestrator) visualValidate(ctx context.Context, st *state) (any, []string, error) {
	rev, err := o.deps.Reviewer.Review(ctx, st.comp, st.gen.Code)
	if err != nil {
		return nil, nil, external("visual-review", err)
	}
	st.review = &rev
	return rev, rev.Issues, nil
}

type persistResult struct {
	Paths   output.Paths     `json:"paths"`
	Indexed *library.Indexed `json:"indexed,omitempty"`
}

func (o *Orchestrator) persist(ctx context.Context, st *state) (any, []string, error) {
	meta := output.Metadata{
		ComponentID:     st.comp.ID(),
		Name:            st.comp.Name(),
		Classification:  st.cls.Tag,
		TargetSchema:    st.mapping.Target.Template,
		MatchTier:       string(matching.TierNone),
		GenerationModel: st.gen.Model,
		ContentHash:     st.comp.ContentHash,
		Timestamp:       time.Now().UTC(),
	}
	if st.report != nil && st.report.Top != nil {
		meta.MatchConfidence = st.report.Top.FinalScore
		meta.MatchTier = string(st.report.Tier)
		if st.hint != nil {
			meta.MatchedComponent = st.hint.ComponentID
		}
	}
	val := output.Validation{
		Checklist: st.quality.Checklist,
		Passed:    st.quality.Passed,
		MatchTier: meta.MatchTier,
		Warnings:  append([]string(nil), st.result.Warnings...),
	}
	if st.review != nil {
		score := st.review.Score
		val.VisualScore = &score
	}

	paths, err := o.deps.Writer.Write(output.Artifacts{
		Name:       st.comp.Name(),
		Type:       st.cls.Tag,
		Code:       st.gen.Code,
		Metadata:   meta,
		Validation: val,
	})
	if err != nil {
		return nil, nil, err
	}
	st.result.Outputs = &paths
	res := persistResult{Paths: paths}

	var warns []string
	if o.deps.Indexer != nil && o.opts.AutoIndex {
		idx, err := o.deps.Indexer.Index(ctx, library.Entry{
			Component:     st.comp,
			Tag:           st.cls.Tag,
			Template:      st.mapping.Target.Template,
			Description:   st.mapping.Description,
			Code:          st.gen.Code,
			Semantic:      st.semantic,
			SemanticModel: st.semModel,
			Visual:        st.visual,
		})
		if err != nil {
			warns = append(warns, fmt.Sprintf("not added to library: %v", err))
		} else {
			res.Indexed = &idx
		}
	}
	return res, warns, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
