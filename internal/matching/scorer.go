// Package matching combines semantic and visual similarity into one
// confidence score per library candidate and buckets it into a tier.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kalambet/designgen/internal/similarity"
	"github.com/kalambet/designgen/internal/storage"
)

// ErrNoCandidate means the library produced no usable reference: it is empty
// or the best score falls below the similar threshold. It is a warning, not
// a failure; callers generate unassisted.
var ErrNoCandidate = errors.New("no matching component in library")

// Tier is a discrete confidence bucket.
type Tier string

const (
	TierExact   Tier = "exact"
	TierSimilar Tier = "similar"
	TierNone    Tier = "none"
)

// tolerance absorbs float rounding at the thresholds, so 0.7*1 + 0.3*1 lands
// in exact and 0.85 computed from float32 inputs is not pushed below.
const tolerance = 1e-9

// Weights split the final score between the two signals.
type Weights struct {
	Semantic float64
	Visual   float64
}

// Thresholds are the lower bounds of the exact and similar tiers.
type Thresholds struct {
	Exact   float64
	Similar float64
}

// DefaultWeights favours the semantic signal so that visually alike but
// semantically different components do not match.
func DefaultWeights() Weights { return Weights{Semantic: 0.70, Visual: 0.30} }

// DefaultThresholds returns the calibrated tier bounds.
func DefaultThresholds() Thresholds { return Thresholds{Exact: 0.85, Similar: 0.75} }

// Validate checks that weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Visual < 0 {
		return fmt.Errorf("weights must be non-negative (semantic=%v visual=%v)", w.Semantic, w.Visual)
	}
	if math.Abs(w.Semantic+w.Visual-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1 (semantic=%v visual=%v)", w.Semantic, w.Visual)
	}
	return nil
}

// Validate checks 0 <= similar <= exact <= 1.
func (t Thresholds) Validate() error {
	if t.Similar < 0 || t.Exact > 1 || t.Similar > t.Exact {
		return fmt.Errorf("thresholds must satisfy 0 <= similar <= exact <= 1 (similar=%v exact=%v)", t.Similar, t.Exact)
	}
	return nil
}

// Classify maps a final score to its tier. It is a monotonic step function.
func (t Thresholds) Classify(score float64) Tier {
	switch {
	case score+tolerance >= t.Exact:
		return TierExact
	case score+tolerance >= t.Similar:
		return TierSimilar
	default:
		return TierNone
	}
}

// Combine returns the weighted final score. Negative similarities count as
// no similarity and the result is clamped to [0,1].
func (w Weights) Combine(semantic, visual float64) float64 {
	s := w.Semantic*clamp01(semantic) + w.Visual*clamp01(visual)
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Result is one candidate scored against the query.
type Result struct {
	ComponentID   string  `json:"component_id"`
	Name          string  `json:"name"`
	ComponentType string  `json:"component_type"`
	SemanticScore float64 `json:"semantic_score"`
	VisualScore   float64 `json:"visual_score"`
	FinalScore    float64 `json:"final_score"`
	Tier          Tier    `json:"tier"`
}

// Report is the outcome of one match request.
type Report struct {
	Results []Result `json:"results"`
	Top     *Result  `json:"top,omitempty"`
	Tier    Tier     `json:"tier"`
}

// NoCandidate reports whether the match produced no usable reference.
func (r Report) NoCandidate() bool {
	return r.Top == nil || r.Tier == TierNone
}

// Query carries the embeddings of the component being matched. Visual may be
// nil, in which case every candidate's visual score is 0.
type Query struct {
	Semantic   []float32
	Visual     []float32
	ExcludeIDs []string
	Limit      int
}

// Library is the store surface the scorer reads from.
type Library interface {
	similarity.Source
	GetComponent(ctx context.Context, id string) (storage.Component, error)
}

// Scorer ranks library components against a query.
type Scorer struct {
	lib        Library
	weights    Weights
	thresholds Thresholds
	limit      int
}

// NewScorer returns a Scorer over lib. maxCandidates caps the reported
// results when the query does not set its own limit.
func NewScorer(lib Library, w Weights, t Thresholds, maxCandidates int) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{lib: lib, weights: w, thresholds: t, limit: maxCandidates}, nil
}

// Thresholds returns the tier bounds the scorer classifies with.
func (s *Scorer) Thresholds() Thresholds { return s.thresholds }

// Match scores every library component that has a semantic embedding. The
// semantic and visual scans run one after the other so that no store query
// is issued while a scan holds the connection.
//
// A query whose dimensionality differs from the store returns
// *storage.DimensionMismatchError. An empty library returns an empty report
// with tier none and no error.
func (s *Scorer) Match(ctx context.Context, q Query) (Report, error) {
	if len(q.Semantic) == 0 {
		return Report{}, errors.New("match query has no semantic embedding")
	}

	semantic, err := similarity.Rank(ctx, s.lib, storage.KindSemantic, q.Semantic, 0)
	if err != nil {
		return Report{}, fmt.Errorf("semantic scan: %w", err)
	}

	var visual map[string]float64
	if len(q.Visual) > 0 {
		visual, err = similarity.Scores(ctx, s.lib, storage.KindVisual, q.Visual)
		if err != nil {
			return Report{}, fmt.Errorf("visual scan: %w", err)
		}
	}

	excluded := make(map[string]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}

	results := make([]Result, 0, len(semantic))
	for _, c := range semantic {
		if excluded[c.ComponentID] {
			continue
		}
		r := Result{
			ComponentID:   c.ComponentID,
			SemanticScore: clamp01(c.Score),
			VisualScore:   clamp01(visual[c.ComponentID]),
		}
		r.FinalScore = s.weights.Combine(r.SemanticScore, r.VisualScore)
		r.Tier = s.thresholds.Classify(r.FinalScore)
		results = append(results, r)
	}

	// Re-rank on the combined score; semantic order breaks ties.
	sortByFinal(results)

	limit := q.Limit
	if limit <= 0 {
		limit = s.limit
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	kept := results[:0]
	for _, r := range results {
		c, err := s.lib.GetComponent(ctx, r.ComponentID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between the scan and the lookup.
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("loading candidate %s: %w", r.ComponentID, err)
		}
		r.Name = c.Name
		r.ComponentType = c.ComponentType
		kept = append(kept, r)
	}
	results = kept

	rep := Report{Results: results, Tier: TierNone}
	if len(results) > 0 {
		top := results[0]
		rep.Top = &top
		rep.Tier = top.Tier
	}
	slog.Debug("match complete", "candidates", len(results), "tier", rep.Tier)
	return rep, nil
}

func sortByFinal(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].FinalScore > rs[j].FinalScore
	})
}
