package node

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// KBNode queries a bound knowledge base and emits its answer as
// content, covering the "knowledge_base" implementation named in
// spec.md §3's NodeCfg enum alongside the node kinds §4.5 details.
type KBNode struct {
	id            string
	label         string
	kbID          string
	maxResults    int
	saveAs        string
}

func NewKBNode(cfg config.NodeCfg) (Node, error) {
	maxResults := 5
	if v, ok := cfg.Data.Config["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}
	return &KBNode{
		id:         cfg.ID,
		label:      cfg.Data.Label,
		kbID:       configString(cfg, "knowledge_base_id"),
		maxResults: maxResults,
		saveAs:     configString(cfg, "save_as"),
	}, nil
}

func (n *KBNode) ID() string               { return n.id }
func (n *KBNode) Category() ftypes.Category { return ftypes.CategoryKB }
func (n *KBNode) Implementation() string    { return "knowledge_base" }
func (n *KBNode) Label() string             { return n.label }
func (n *KBNode) RequiresMount() bool       { return false }

func (n *KBNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk, 2)
	go func() {
		defer close(ch)
		query := renderTemplate(nc.Message, nc.Message, nc.State)
		result, err := nc.Services.SearchKnowledgeBase(ctx, n.kbID, query, n.maxResults)
		if err != nil {
			select {
			case ch <- ftypes.Chunk{Type: ftypes.NodeError, Content: err.Error(), AgentName: nc.AgentName}:
			case <-ctx.Done():
			}
			return
		}
		nc.State.SaveOutput(n.id, result.Response, n.saveAs)
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Content, Content: result.Response, AgentName: nc.AgentName,
			Metadata: ftypes.Metadata{"sources": result.Sources}}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Final, Content: result.Response, AgentName: nc.AgentName, IsEnd: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
