package library

import (
	"context"
	"fmt"

	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/storage"
)

// Search scores the component described by in against the library. Stored
// versions of the same component are left out of the results.
func (ix *Indexer) Search(ctx context.Context, scorer *matching.Scorer, in design.Input, limit int) (matching.Report, error) {
	c, err := design.Parse(in)
	if err != nil {
		return matching.Report{}, err
	}
	e := ix.Prepare(c)
	if len(e.Semantic) == 0 {
		if ix.embedder == nil {
			return matching.Report{}, fmt.Errorf("searching %s: no semantic embedding and no embedder configured", c.ID())
		}
		if e.Semantic, err = ix.embedder.Embed(ctx, e.Description); err != nil {
			return matching.Report{}, fmt.Errorf("searching %s: %w", c.ID(), err)
		}
	}

	own, err := ix.store.ListComponents(ctx, storage.ListFilter{BaseID: c.ID()})
	if err != nil {
		return matching.Report{}, err
	}
	exclude := make([]string, len(own))
	for i, v := range own {
		exclude[i] = v.ID
	}
	return scorer.Match(ctx, matching.Query{
		Semantic:   e.Semantic,
		Visual:     e.Visual,
		ExcludeIDs: exclude,
		Limit:      limit,
	})
}
