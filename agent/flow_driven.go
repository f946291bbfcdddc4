package agent

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow"
	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/pipeline"
)

// MessageNode is one flow node's contribution to an assistant message,
// per spec.md §3's MessageNode entity.
type MessageNode struct {
	NodeID         string
	NodeType       string
	NodeName       string
	Content        string
	Metadata       map[string]interface{}
}

// FlowDrivenAgent delegates processing to the Flow Engine (C4), per
// §4.6. It injects its own name onto every chunk and records each
// node's output as a MessageNode via the engine's on_chunk/on_final
// hooks.
type FlowDrivenAgent struct {
	Name                string
	FlowConfig          config.FlowConfig
	BoundTools          []string
	BoundKnowledgeBases []string
	ModelID             string

	rt      *Runtime
	engine  *flow.Engine
	svc     node.Services
}

func NewFlowDrivenAgent(name string, flowCfg config.FlowConfig, boundTools, boundKBs []string, modelID string, rt *Runtime) (*FlowDrivenAgent, error) {
	factory := node.NewFactory()
	engine, err := flow.BuildEngine(flowCfg, factory)
	if err != nil {
		return nil, err
	}
	return &FlowDrivenAgent{
		Name:                name,
		FlowConfig:          flowCfg,
		BoundTools:          boundTools,
		BoundKnowledgeBases: boundKBs,
		ModelID:             modelID,
		rt:                  rt,
		engine:              engine,
		svc:                 newServices(rt, modelID),
	}, nil
}

// ProcessMessageStream runs the flow graph for one chat turn, tagging
// every chunk with the agent's name and persisting per-node output as
// MessageNode records via onNode.
func (a *FlowDrivenAgent) ProcessMessageStream(ctx context.Context, userID, message, sessionID string, onNode func(MessageNode)) (<-chan ftypes.Chunk, error) {
	pipe := a.rt.Pipeline
	if pipe == nil {
		pipe = pipeline.New(pipeline.SnapshotKey(userID, a.Name, sessionID))
		a.rt.Pipeline = pipe
	}
	state := node.NewFlowState(pipe)

	// Node chunks carry no node_id of their own; the engine's preceding
	// node_start chunk identifies the node that produced them.
	var currentNode ftypes.Metadata
	a.engine.OnChunk(func(c ftypes.Chunk) (ftypes.Chunk, bool) {
		c.AgentName = a.Name
		if c.Type == ftypes.NodeStart {
			currentNode = c.Metadata
		}
		if onNode != nil {
			if nodeID, ok := currentNode["node_id"].(string); ok && (c.Type == ftypes.Content || c.Type == ftypes.ToolResult) {
				onNode(MessageNode{
					NodeID:   nodeID,
					NodeType: metaString(currentNode, "node_implementation"),
					NodeName: metaString(currentNode, "node_label"),
					Content:  c.Content,
					Metadata: c.Metadata,
				})
			}
		}
		return c, true
	})
	a.engine.OnFinal(func(c ftypes.Chunk) {
		rememberDialogTurn(ctx, a.rt, userID, a.Name, sessionID, message, c.Content)
	})

	return a.engine.RunStream(ctx, userID, message, state, a.svc, nil, a.Name, sessionID)
}

// Stream implements Agent for FlowDrivenAgent, forwarding directly to
// ProcessMessageStream's onNode hook.
func (a *FlowDrivenAgent) Stream(ctx context.Context, userID, message, sessionID string, onNode func(MessageNode)) (<-chan ftypes.Chunk, error) {
	return a.ProcessMessageStream(ctx, userID, message, sessionID, onNode)
}

func metaString(m ftypes.Metadata, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
