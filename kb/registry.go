package kb

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/registry"
)

// Registry holds one retrieval Engine per knowledge base, keyed by
// kb_id, and is the concrete type agent.Runtime.KB and the Flow
// Engine's node.Services both query against.
type Registry struct {
	*registry.BaseRegistry[*Engine]
	mu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[*Engine]()}
}

// Query satisfies agent.KnowledgeSearcher and node.Services'
// underlying SearchKnowledgeBase surface: look up the engine for
// kb_id and run its retrieval pipeline, translated into the
// node.KBResult shape flow nodes and agents consume.
func (r *Registry) Query(ctx context.Context, kbID, query, userID string, maxResults int) (node.KBResult, error) {
	engine, ok := r.Get(kbID)
	if !ok {
		return node.KBResult{}, fmt.Errorf("kb: unknown knowledge base %q", kbID)
	}
	result, err := engine.Query(ctx, query, userID, maxResults)
	if err != nil {
		return node.KBResult{}, err
	}
	sources := make([]string, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, s.ChunkID)
	}
	return node.KBResult{Response: result.Response, Sources: sources}, nil
}
