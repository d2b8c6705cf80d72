// Package similarity ranks stored embeddings against a query vector by
// cosine similarity.
//
// The search is a brute-force linear scan (O(n·d)). It is validated for
// libraries of up to 10,000 components; beyond that an approximate index
// would be needed, see TestRank_ScaleLimit.
package similarity

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sort"

	"github.com/kalambet/designgen/internal/storage"
)

// MaxValidatedLibrarySize is the library size the full scan is tested at.
const MaxValidatedLibrarySize = 10_000

// Source yields every stored embedding of one kind. *storage.Store implements it.
type Source interface {
	AllEmbeddings(ctx context.Context, kind storage.Kind) iter.Seq2[storage.StoredEmbedding, error]
}

// Candidate is one stored component scored against the query.
type Candidate struct {
	ComponentID string
	Score       float64
}

// Cosine returns dot(a,b) / (|a|·|b|). Zero-magnitude vectors and vectors of
// different lengths score 0 rather than failing.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aa, bb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aa += x * x
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(aa) * math.Sqrt(bb))
	// Rounding can push identical vectors a hair past 1.
	return math.Max(-1, math.Min(1, c))
}

// Rank scores every stored embedding of kind against query and returns them
// sorted by descending score. Ties keep insertion order. limit <= 0 returns
// all candidates.
//
// A stored vector whose length differs from the query fails the scan with
// *storage.DimensionMismatchError.
func Rank(ctx context.Context, src Source, kind storage.Kind, query []float32, limit int) ([]Candidate, error) {
	var out []Candidate
	for se, err := range src.AllEmbeddings(ctx, kind) {
		if err != nil {
			return nil, err
		}
		if len(se.Vector) != len(query) {
			return nil, &storage.DimensionMismatchError{Kind: kind, Expected: len(se.Vector), Got: len(query)}
		}
		out = append(out, Candidate{ComponentID: se.ComponentID, Score: Cosine(query, se.Vector)})
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ranking %s embeddings: %w", kind, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Scores returns the cosine score of every stored embedding of kind, keyed by
// component id. Used when a second signal must be looked up per candidate.
func Scores(ctx context.Context, src Source, kind storage.Kind, query []float32) (map[string]float64, error) {
	out := make(map[string]float64)
	for se, err := range src.AllEmbeddings(ctx, kind) {
		if err != nil {
			return nil, err
		}
		if len(se.Vector) != len(query) {
			return nil, &storage.DimensionMismatchError{Kind: kind, Expected: len(se.Vector), Got: len(query)}
		}
		out[se.ComponentID] = Cosine(query, se.Vector)
	}
	return out, nil
}
