package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Kind names the similarity signal an embedding represents.
type Kind string

const (
	KindSemantic Kind = "semantic"
	KindVisual   Kind = "visual"
)

// Valid reports whether k is one of the known embedding kinds.
func (k Kind) Valid() bool {
	return k == KindSemantic || k == KindVisual
}

// Component is a design element held in the library.
type Component struct {
	ID            string
	BaseID        string
	Version       int
	Name          string
	ComponentType string
	SourcePath    string
	Metadata      map[string]any
	ContentHash   string
	CreatedAt     time.Time
}

// Embedding is one vector of a given kind attached to a component.
type Embedding struct {
	ComponentID string
	Kind        Kind
	Vector      []float32
	Dimensions  int
	ModelName   string
	CreatedAt   time.Time
}

// StoredEmbedding is the minimal projection yielded by AllEmbeddings.
type StoredEmbedding struct {
	ComponentID string
	Vector      []float32
}

// ListFilter narrows ListComponents. Zero values mean "no filter".
type ListFilter struct {
	Type   string
	BaseID string
	Limit  int
}

// Run is a persisted batch summary.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Succeeded   int
	Failed      int
	CacheHits   int
	SummaryJSON string
}

// DuplicateIDError is returned when inserting a component whose id is taken.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("component %q already exists", e.ID)
}

// DimensionMismatchError is returned when a vector's dimensionality differs
// from the embeddings of the same kind already in the store. It usually means
// the embedding model changed.
type DimensionMismatchError struct {
	Kind     Kind
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s embedding dimension mismatch: store has %d, got %d", e.Kind, e.Expected, e.Got)
}
