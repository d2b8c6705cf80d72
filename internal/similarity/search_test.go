package similarity

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/kalambet/designgen/internal/storage"
)

var ctx = context.Background()

// sliceSource is an in-memory Source.
type sliceSource struct {
	entries []storage.StoredEmbedding
	err     error
}

func (s *sliceSource) AllEmbeddings(_ context.Context, _ storage.Kind) iter.Seq2[storage.StoredEmbedding, error] {
	return func(yield func(storage.StoredEmbedding, error) bool) {
		if s.err != nil {
			yield(storage.StoredEmbedding{}, s.err)
			return
		}
		for _, e := range s.entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestCosine_Identity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		v := randomVector(r, 64)
		if got := Cosine(v, v); math.Abs(got-1) > 1e-9 {
			t.Fatalf("Cosine(v, v) = %v, want 1", got)
		}
	}
}

func TestCosine_Symmetry(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		a, b := randomVector(r, 32), randomVector(r, 32)
		if Cosine(a, b) != Cosine(b, a) {
			t.Fatalf("Cosine not symmetric for pair %d", i)
		}
	}
}

func TestCosine_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero magnitude", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank_SortedAndStable(t *testing.T) {
	src := &sliceSource{entries: []storage.StoredEmbedding{
		{ComponentID: "far", Vector: []float32{0, 1}},
		{ComponentID: "tie-a", Vector: []float32{1, 1}},
		{ComponentID: "best", Vector: []float32{1, 0}},
		{ComponentID: "tie-b", Vector: []float32{2, 2}},
	}}

	got, err := Rank(ctx, src, storage.KindSemantic, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"best", "tie-a", "tie-b", "far"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ComponentID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ComponentID, id)
		}
	}

	top, err := Rank(ctx, src, storage.KindSemantic, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(top) != 2 {
		t.Errorf("limit ignored: got %d", len(top))
	}
}

func TestRank_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	src := &sliceSource{}
	for i := 0; i < 200; i++ {
		src.entries = append(src.entries, storage.StoredEmbedding{ComponentID: fmt.Sprintf("c%d", i), Vector: randomVector(r, 8)})
	}
	q := randomVector(r, 8)

	a, _ := Rank(ctx, src, storage.KindSemantic, q, 0)
	b, _ := Rank(ctx, src, storage.KindSemantic, q, 0)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("rank differs at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRank_DimensionMismatch(t *testing.T) {
	src := &sliceSource{entries: []storage.StoredEmbedding{{ComponentID: "a", Vector: []float32{1, 0, 0}}}}
	_, err := Rank(ctx, src, storage.KindSemantic, []float32{1, 0}, 0)
	var dm *storage.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("err = %v, want *DimensionMismatchError", err)
	}
}

func TestRank_SourceError(t *testing.T) {
	src := &sliceSource{err: errors.New("disk gone")}
	if _, err := Rank(ctx, src, storage.KindSemantic, []float32{1}, 0); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestRank_EmptyLibrary(t *testing.T) {
	got, err := Rank(ctx, &sliceSource{}, storage.KindSemantic, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates from empty library", len(got))
	}
}

// TestRank_ScaleLimit pins the documented scaling limit: a full scan over the
// largest validated library with realistic embedding width stays interactive.
func TestRank_ScaleLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("scale test skipped in short mode")
	}
	r := rand.New(rand.NewSource(4))
	src := &sliceSource{entries: make([]storage.StoredEmbedding, MaxValidatedLibrarySize)}
	for i := range src.entries {
		src.entries[i] = storage.StoredEmbedding{ComponentID: fmt.Sprintf("c%d", i), Vector: randomVector(r, 384)}
	}
	q := randomVector(r, 384)

	start := time.Now()
	got, err := Rank(ctx, src, storage.KindSemantic, q, 10)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("got %d candidates, want 10", len(got))
	}
	if elapsed > 2*time.Second {
		t.Errorf("full scan over %d components took %v; an approximate index is needed", MaxValidatedLibrarySize, elapsed)
	}
}

func TestRank_WithSQLiteStore(t *testing.T) {
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i, v := range [][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}} {
		id := fmt.Sprintf("c%d", i)
		if _, err := s.InsertComponent(ctx, storage.Component{ID: id, Name: id, ComponentType: "button"}); err != nil {
			t.Fatalf("InsertComponent: %v", err)
		}
		if err := s.AttachEmbedding(ctx, id, storage.KindSemantic, v, "m"); err != nil {
			t.Fatalf("AttachEmbedding: %v", err)
		}
	}

	got, err := Rank(ctx, s, storage.KindSemantic, []float32{1, 0, 0}, 0)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got[0].ComponentID != "c0" || got[1].ComponentID != "c2" || got[2].ComponentID != "c1" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func BenchmarkRank10k(b *testing.B) {
	r := rand.New(rand.NewSource(5))
	src := &sliceSource{entries: make([]storage.StoredEmbedding, MaxValidatedLibrarySize)}
	for i := range src.entries {
		src.entries[i] = storage.StoredEmbedding{ComponentID: fmt.Sprintf("c%d", i), Vector: randomVector(r, 768)}
	}
	q := randomVector(r, 768)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Rank(ctx, src, storage.KindSemantic, q, 10); err != nil {
			b.Fatal(err)
		}
	}
}
