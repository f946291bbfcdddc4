package node

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/pipeline"
	"github.com/flowctl/convoy/tool"
)

// SubEngine is the minimal surface CompositeNode needs from the flow
// engine (C4) to run a nested subflow without composite.go importing
// package flow directly — flow constructs the concrete engine and
// injects it via NewCompositeNodeFactory's builder, avoiding an import
// cycle symmetric to the one ftypes already solves for chunk types.
type SubEngine interface {
	RunStream(ctx context.Context, userID, message string, state *FlowState, services Services, workspace *tool.Workspace, agentName, sessionID string) (<-chan ftypes.Chunk, error)
}

// EngineBuilder constructs a SubEngine from a raw {nodes, edges} map,
// supplied by package flow so CompositeNode can build nested engines
// without importing flow.
type EngineBuilder func(subflow map[string]interface{}) (SubEngine, error)

// CompositeNode wraps a sub-flow, remapping a subset of flow_state
// into a fresh sub-context, running it to completion, then remapping
// outputs back, per §4.5.
type CompositeNode struct {
	id            string
	label         string
	subflow       map[string]interface{}
	inputMapping  map[string]string
	outputMapping map[string]string
	saveAs        string
	build         EngineBuilder
}

// NewCompositeNodeFactory returns a constructor bound to the given
// EngineBuilder, used by factory.go to register CompositeNode without
// the node package importing flow.
func NewCompositeNodeFactory(build EngineBuilder) func(cfg config.NodeCfg) (Node, error) {
	return func(cfg config.NodeCfg) (Node, error) {
		subflow, _ := cfg.Data.Config["subflow"].(map[string]interface{})
		inputMapping := stringMap(cfg.Data.Config["input_mapping"])
		outputMapping := stringMap(cfg.Data.Config["output_mapping"])
		return &CompositeNode{
			id:            cfg.ID,
			label:         cfg.Data.Label,
			subflow:       subflow,
			inputMapping:  inputMapping,
			outputMapping: outputMapping,
			saveAs:        configString(cfg, "save_as"),
			build:         build,
		}, nil
	}
}

func stringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (n *CompositeNode) ID() string               { return n.id }
func (n *CompositeNode) Category() ftypes.Category { return ftypes.CategoryComposite }
func (n *CompositeNode) Implementation() string    { return "composite" }
func (n *CompositeNode) Label() string             { return n.label }
func (n *CompositeNode) RequiresMount() bool       { return false }

func (n *CompositeNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	engine, err := n.build(n.subflow)
	if err != nil {
		return errorToolChan("composite node: " + err.Error()), nil
	}

	subPipe := pipeline.New(nc.SessionID + ":" + n.id)
	subState := NewFlowState(subPipe)
	n.copyInputs(nc.State, subState)

	inner, err := engine.RunStream(ctx, nc.UserID, nc.Message, subState, nc.Services, nc.Workspace, nc.AgentName, nc.SessionID)
	if err != nil {
		return errorToolChan("composite node: " + err.Error()), nil
	}

	ch := make(chan ftypes.Chunk, 8)
	go func() {
		defer close(ch)
		var lastOutput interface{}
		for chunk := range inner {
			if chunk.Metadata == nil {
				chunk.Metadata = ftypes.Metadata{}
			}
			chunk.Metadata["composite_node_id"] = n.id
			if chunk.Content != "" {
				lastOutput = chunk.Content
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if v := subState.LastOutput(); v != nil {
			lastOutput = v
		}
		n.copyOutputs(subState, nc.State, lastOutput)
	}()
	return ch, nil
}

// copyInputs copies only the keys named in input_mapping (or
// last_output by default) from the parent flow_state into the fresh
// sub-context, per §4.5.
func (n *CompositeNode) copyInputs(parent, child *FlowState) {
	if len(n.inputMapping) == 0 {
		child.SetLastOutput(parent.LastOutput())
		return
	}
	for parentKey, childKey := range n.inputMapping {
		if v, ok := parent.Get(parentKey); ok {
			child.Set(childKey, v)
		}
	}
}

// copyOutputs maps sub-context keys back into the parent per
// output_mapping, else writes the subflow's last output to save_as or
// last_output.
func (n *CompositeNode) copyOutputs(child, parent *FlowState, lastOutput interface{}) {
	if len(n.outputMapping) == 0 {
		if n.saveAs != "" {
			parent.Set(n.saveAs, lastOutput)
		} else {
			parent.SetLastOutput(lastOutput)
		}
		parent.SaveOutput(n.id, lastOutput, "")
		return
	}
	for childKey, parentKey := range n.outputMapping {
		if v, ok := child.Get(childKey); ok {
			parent.Set(parentKey, v)
		}
	}
	parent.SaveOutput(n.id, lastOutput, "")
}
