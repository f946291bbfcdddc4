package node

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// StartNode persists the initial message as its output, per §4.5.
type StartNode struct {
	id    string
	label string
}

func NewStartNode(cfg config.NodeCfg) (Node, error) {
	return &StartNode{id: cfg.ID, label: cfg.Data.Label}, nil
}

func (n *StartNode) ID() string                 { return n.id }
func (n *StartNode) Category() ftypes.Category   { return ftypes.CategoryStart }
func (n *StartNode) Implementation() string      { return "start" }
func (n *StartNode) Label() string               { return n.label }
func (n *StartNode) RequiresMount() bool         { return false }

func (n *StartNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk, 2)
	go func() {
		defer close(ch)
		nc.State.SaveOutput(n.id, nc.Message, "")
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Content, Content: nc.Message, AgentName: nc.AgentName}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// EndNode emits a final chunk carrying flow_state.last_output with
// is_end=true, per §4.5.
type EndNode struct {
	id    string
	label string
}

func NewEndNode(cfg config.NodeCfg) (Node, error) {
	return &EndNode{id: cfg.ID, label: cfg.Data.Label}, nil
}

func (n *EndNode) ID() string               { return n.id }
func (n *EndNode) Category() ftypes.Category { return ftypes.CategoryEnd }
func (n *EndNode) Implementation() string    { return "end" }
func (n *EndNode) Label() string             { return n.label }
func (n *EndNode) RequiresMount() bool       { return false }

func (n *EndNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk, 1)
	go func() {
		defer close(ch)
		last := nc.State.LastOutput()
		content, _ := last.(string)
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Final, Content: content, AgentName: nc.AgentName, IsEnd: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
