// Package library indexes processed components into the embedding store so
// later runs can match against them.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/schema"
	"github.com/kalambet/designgen/internal/storage"
	"github.com/kalambet/designgen/internal/visual"
)

// PrecomputedModel is recorded for vectors supplied with the input record.
const PrecomputedModel = "precomputed"

// Metadata keys written alongside every indexed component.
const (
	MetaTag         = "tag"
	MetaTemplate    = "template"
	MetaDescription = "description"
	MetaCode        = "code"
)

// Embedder produces semantic vectors. *embedding.Embedder implements it.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Entry is one component ready to be indexed.
type Entry struct {
	Component   *design.Component
	Tag         string
	Template    string
	Description string
	Code        string
	Semantic    []float32
	Visual      []float32

	// SemanticModel names the model Semantic came from. Empty means the
	// vector was supplied with the input.
	SemanticModel string
}

// Indexed describes the stored version of an entry.
type Indexed struct {
	ID      string `json:"id"`
	BaseID  string `json:"base_id"`
	Version int    `json:"version"`
	Created bool   `json:"created"`
}

// Indexer writes entries into the store.
type Indexer struct {
	store      *storage.Store
	embedder   Embedder
	classifier *classify.Classifier
	mapper     *icons.Mapper
}

// New returns an Indexer. embedder may be nil when every entry carries a
// precomputed semantic vector.
func New(store *storage.Store, embedder Embedder, classifier *classify.Classifier, mapper *icons.Mapper) *Indexer {
	return &Indexer{store: store, embedder: embedder, classifier: classifier, mapper: mapper}
}

// VersionID names version n of baseID.
func VersionID(baseID string, n int) string {
	return fmt.Sprintf("%s@v%d", baseID, n)
}

// Prepare classifies and maps c without touching the store.
func (ix *Indexer) Prepare(c *design.Component) Entry {
	cls := ix.classifier.Classify(c)
	m := schema.Map(c, cls, ix.mapper.Extract(c))
	e := Entry{
		Component:   c,
		Tag:         cls.Tag,
		Template:    m.Target.Template,
		Description: m.Description,
		Visual:      m.Visual,
	}
	if emb := c.Record.Embeddings; emb != nil {
		e.Semantic = emb.Semantic
		if len(emb.Visual) > 0 {
			e.Visual = emb.Visual
		}
	}
	return e
}

// Index stores e as a new version of its component. Indexing content that
// matches the latest version is a no-op.
func (ix *Indexer) Index(ctx context.Context, e Entry) (Indexed, error) {
	version, existing, err := ix.nextVersion(ctx, e.Component)
	if err != nil || existing != nil {
		return deref(existing), err
	}
	model := e.SemanticModel
	if model == "" {
		model = PrecomputedModel
	}
	if len(e.Semantic) == 0 {
		if ix.embedder == nil {
			return Indexed{}, fmt.Errorf("indexing %s: no semantic embedding and no embedder configured", e.Component.ID())
		}
		if e.Semantic, err = ix.embedder.Embed(ctx, e.Description); err != nil {
			return Indexed{}, fmt.Errorf("indexing %s: %w", e.Component.ID(), err)
		}
		model = ix.embedder.Model()
	}
	return ix.write(ctx, e, version, model)
}

// nextVersion returns the version number e would be stored under, or the
// existing version when its content is unchanged.
func (ix *Indexer) nextVersion(ctx context.Context, c *design.Component) (int, *Indexed, error) {
	baseID := c.ID()
	latest, err := ix.store.LatestVersion(ctx, baseID)
	if errors.Is(err, storage.ErrNotFound) {
		return 1, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("looking up %s: %w", baseID, err)
	}
	if latest.ContentHash == c.ContentHash {
		return latest.Version, &Indexed{ID: latest.ID, BaseID: baseID, Version: latest.Version}, nil
	}
	return latest.Version + 1, nil, nil
}

func deref(i *Indexed) Indexed {
	if i == nil {
		return Indexed{}
	}
	return *i
}

func (ix *Indexer) write(ctx context.Context, e Entry, version int, semanticModel string) (Indexed, error) {
	c := e.Component
	baseID := c.ID()
	meta := make(map[string]any, len(c.Record.Metadata)+4)
	for k, v := range c.Record.Metadata {
		meta[k] = v
	}
	meta[MetaTag] = e.Tag
	meta[MetaTemplate] = e.Template
	meta[MetaDescription] = e.Description
	if e.Code != "" {
		meta[MetaCode] = e.Code
	}

	id, err := ix.store.InsertComponent(ctx, storage.Component{
		ID:            VersionID(baseID, version),
		BaseID:        baseID,
		Version:       version,
		Name:          c.Name(),
		ComponentType: e.Tag,
		SourcePath:    c.SourcePath,
		Metadata:      meta,
		ContentHash:   c.ContentHash,
	})
	if err != nil {
		return Indexed{}, err
	}

	visualModel := visual.FeatureModel
	if emb := c.Record.Embeddings; emb != nil && len(emb.Visual) > 0 {
		visualModel = PrecomputedModel
	}
	if err := ix.store.AttachEmbedding(ctx, id, storage.KindSemantic, e.Semantic, semanticModel); err != nil {
		ix.rollback(ctx, id)
		return Indexed{}, fmt.Errorf("indexing %s: %w", id, err)
	}
	if len(e.Visual) > 0 {
		if err := ix.store.AttachEmbedding(ctx, id, storage.KindVisual, e.Visual, visualModel); err != nil {
			ix.rollback(ctx, id)
			return Indexed{}, fmt.Errorf("indexing %s: %w", id, err)
		}
	}
	slog.Debug("indexed component", "component_id", id, "version", version)
	return Indexed{ID: id, BaseID: baseID, Version: version, Created: true}, nil
}

func (ix *Indexer) rollback(ctx context.Context, id string) {
	if err := ix.store.DeleteComponent(ctx, id); err != nil {
		slog.Warn("rolling back partially indexed component", "component_id", id, "error", err)
	}
}

// Failure is an input that could not be indexed.
type Failure struct {
	ComponentID string `json:"component_id"`
	Error       string `json:"error"`
}

// IndexInputs parses, prepares and indexes every input. Semantic vectors
// missing from the inputs are embedded in one batch. A bad input is reported
// and does not stop the others.
func (ix *Indexer) IndexInputs(ctx context.Context, inputs []design.Input) ([]Indexed, []Failure, error) {
	var entries []Entry
	var failures []Failure
	for _, in := range inputs {
		c, err := design.Parse(in)
		if err != nil {
			failures = append(failures, Failure{ComponentID: in.ID, Error: err.Error()})
			continue
		}
		entries = append(entries, ix.Prepare(c))
	}

	models := make([]string, len(entries))
	var pending []int
	var texts []string
	for i, e := range entries {
		models[i] = PrecomputedModel
		if len(e.Semantic) == 0 {
			pending = append(pending, i)
			texts = append(texts, e.Description)
		}
	}
	if len(pending) > 0 {
		if ix.embedder == nil {
			return nil, failures, fmt.Errorf("%d components need semantic embeddings and no embedder is configured", len(pending))
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, failures, fmt.Errorf("embedding descriptions: %w", err)
		}
		for j, i := range pending {
			entries[i].Semantic = vecs[j]
			models[i] = ix.embedder.Model()
		}
	}

	var out []Indexed
	for i, e := range entries {
		version, existing, err := ix.nextVersion(ctx, e.Component)
		if err != nil {
			return out, failures, err
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}
		res, err := ix.write(ctx, e, version, models[i])
		if err != nil {
			failures = append(failures, Failure{ComponentID: e.Component.ID(), Error: err.Error()})
			continue
		}
		out = append(out, res)
	}
	return out, failures, nil
}
