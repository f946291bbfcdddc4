package kg

import "context"

// Booster adapts a Store into kb.GraphBooster: for each query entity,
// it finds every triple touching that entity and reports the chunk
// each triple came from, letting kb.Engine boost those chunks'
// similarity. Grounded on spec.md §4.7 step 5's graph-enhancement
// description.
type Booster struct {
	Store Store
}

func NewBooster(store Store) *Booster {
	return &Booster{Store: store}
}

func (b *Booster) ChunksForEntities(ctx context.Context, kbID string, entities []string) (map[string]bool, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	triples, err := b.Store.AllTriplesTouching(ctx, kbID, entities, 200)
	if err != nil {
		return nil, err
	}
	chunks := make(map[string]bool)
	for _, t := range triples {
		if t.ChunkID != "" {
			chunks[t.ChunkID] = true
		}
	}
	return chunks, nil
}
