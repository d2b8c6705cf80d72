// Package embedding produces semantic embeddings of component descriptions.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/designgen/internal/engine"
)

// batchConcurrency bounds parallel calls into the local engine.
const batchConcurrency = 4

// Embedder turns text into vectors with one engine model.
type Embedder struct {
	engine engine.Engine
	model  string
}

// New creates an Embedder using model on e.
func New(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model is the name recorded with every embedding this Embedder produces.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding with %s: empty vector", e.model)
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently and returns vectors in input order.
// Empty input returns nil without error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
