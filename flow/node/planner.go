package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// PlannerSubgraph is the {nodes, edges, metadata} shape the LLM
// returns and the planner instantiates, per §4.5.
type PlannerSubgraph struct {
	Nodes    []config.NodeCfg `json:"nodes"`
	Edges    []config.EdgeCfg `json:"edges"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PlannerBuildAndRun is supplied by package flow: given instantiated
// nodes and edges it builds and executes a linear subgraph, returning
// chunks plus whether the branch failed (a node_error or a
// node_complete.metadata.error was seen), letting PlannerNode drive
// retries without importing the engine package directly.
type PlannerBuildAndRun func(ctx context.Context, nodes []Node, edges []config.EdgeCfg, nc *Context) (<-chan ftypes.Chunk, <-chan bool)

// PlannerNode asks the LLM to lay out a subgraph for the current task,
// appends it to the live flow, executes it, and re-plans with
// namespaced node IDs on failure, per §4.5.
type PlannerNode struct {
	id         string
	label      string
	maxRetries int
	factory    *Factory
	runSub     PlannerBuildAndRun
}

const defaultPlannerMaxRetries = 3

// NewPlannerNodeFactory binds a node Factory (for instantiating
// planned nodes) and a PlannerBuildAndRun (for executing them),
// mirroring CompositeNode's builder-injection pattern to avoid
// node→flow import cycle.
func NewPlannerNodeFactory(factory *Factory, runSub PlannerBuildAndRun) func(cfg config.NodeCfg) (Node, error) {
	return func(cfg config.NodeCfg) (Node, error) {
		maxRetries := defaultPlannerMaxRetries
		if v, ok := cfg.Data.Config["max_retries"].(float64); ok {
			maxRetries = int(v)
		}
		return &PlannerNode{id: cfg.ID, label: cfg.Data.Label, maxRetries: maxRetries, factory: factory, runSub: runSub}, nil
	}
}

func (n *PlannerNode) ID() string               { return n.id }
func (n *PlannerNode) Category() ftypes.Category { return ftypes.CategoryPlanner }
func (n *PlannerNode) Implementation() string    { return "planner" }
func (n *PlannerNode) Label() string             { return n.label }
func (n *PlannerNode) RequiresMount() bool       { return false }

func (n *PlannerNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk, 16)
	go func() {
		defer close(ch)
		retryIndex := 0
		errSummary := ""
		for {
			subgraph, err := n.plan(ctx, nc, retryIndex, errSummary)
			if err != nil {
				select {
				case ch <- ftypes.Chunk{Type: ftypes.NodeError, AgentName: nc.AgentName, Content: err.Error()}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- ftypes.Chunk{
				Type:      ftypes.FlowNodesExtend,
				AgentName: nc.AgentName,
				Metadata: ftypes.Metadata{
					"planner_node_id": n.id,
					"retry_index":     retryIndex,
					"is_retry":        retryIndex > 0,
					"nodes":           subgraph.Nodes,
					"edges":           subgraph.Edges,
				},
			}:
			case <-ctx.Done():
				return
			}

			nodes, err := n.instantiate(subgraph.Nodes)
			if err != nil {
				select {
				case ch <- ftypes.Chunk{Type: ftypes.NodeError, AgentName: nc.AgentName, Content: err.Error()}:
				case <-ctx.Done():
				}
				return
			}

			subChunks, failed := n.runSub(ctx, nodes, subgraph.Edges, nc)
			var branchFailed bool
			for chunk := range subChunks {
				if chunk.Metadata == nil {
					chunk.Metadata = ftypes.Metadata{}
				}
				chunk.Metadata["planner_node_id"] = n.id
				chunk.Metadata["retry_index"] = retryIndex
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
				if chunk.Type == ftypes.NodeError {
					branchFailed = true
					errSummary = chunk.Content
				}
			}
			if v, ok := <-failed; ok {
				branchFailed = branchFailed || v
			}

			if !branchFailed {
				select {
				case ch <- ftypes.Chunk{Type: ftypes.Final, AgentName: nc.AgentName, IsEnd: true, Content: fmt.Sprintf("%v", nc.State.LastOutput())}:
				case <-ctx.Done():
				}
				return
			}

			retryIndex++
			if retryIndex > n.maxRetries {
				select {
				case ch <- ftypes.Chunk{Type: ftypes.NodeError, AgentName: nc.AgentName, Content: "planner: retry cap exceeded: " + errSummary}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch, nil
}

// plan builds the prompt described in §4.5 (task, context, available
// tools, naming convention, constraints), calls the LLM, and sanitizes
// the returned subgraph: strips any start/end nodes the LLM produced,
// drops edges touching them, prefixes every node ID with
// {planner_id}_retry_{retry_index}_ (on the first attempt too), and
// enforces serial connectivity by regenerating edges from node order
// if branches or orphans are detected.
func (n *PlannerNode) plan(ctx context.Context, nc *Context, retryIndex int, errSummary string) (PlannerSubgraph, error) {
	caller, err := nc.Services.LLM("")
	if err != nil {
		return PlannerSubgraph{}, err
	}

	tools := nc.Services.HighestScoredTools()
	system := "You design a single serial chain of flow nodes to accomplish a task. " +
		"Never produce start or end nodes. Always prepend an auto_param node before a tool node. " +
		fmt.Sprintf("Node IDs must follow %s_retry_%d_N.", n.id, retryIndex) +
		" Respond with JSON {nodes, edges, metadata} only."
	user := fmt.Sprintf("task: %s\navailable_tools: %v", nc.Message, tools)
	if errSummary != "" {
		user += "\nprevious_attempt_error: " + errSummary
	}

	response, _, err := caller.Complete(ctx, system, user)
	if err != nil {
		return PlannerSubgraph{}, err
	}
	candidate := extractJSONObject(response)
	var sub PlannerSubgraph
	if err := json.Unmarshal([]byte(candidate), &sub); err != nil {
		return PlannerSubgraph{}, fmt.Errorf("planner: could not parse subgraph: %w", err)
	}

	sub = n.sanitize(sub, retryIndex)
	return sub, nil
}

func (n *PlannerNode) sanitize(sub PlannerSubgraph, retryIndex int) PlannerSubgraph {
	startEnd := make(map[string]bool)
	kept := sub.Nodes[:0:0]
	for _, node := range sub.Nodes {
		if node.Implementation == "start" || node.Implementation == "end" {
			startEnd[node.ID] = true
			continue
		}
		if !strings.Contains(node.ID, fmt.Sprintf("%s_retry_%d_", n.id, retryIndex)) {
			node.ID = fmt.Sprintf("%s_retry_%d_%s", n.id, retryIndex, node.ID)
		}
		kept = append(kept, node)
	}

	edges := sub.Edges[:0:0]
	for _, edge := range sub.Edges {
		if startEnd[edge.Source] || startEnd[edge.Target] {
			continue
		}
		edges = append(edges, edge)
	}

	if !n.isSerialChain(kept, edges) {
		edges = n.regenerateSerialEdges(kept)
	}

	sub.Nodes = kept
	sub.Edges = edges
	return sub
}

// isSerialChain reports whether edges form exactly one path touching
// every node once, with no branching or orphans.
func (n *PlannerNode) isSerialChain(nodes []config.NodeCfg, edges []config.EdgeCfg) bool {
	if len(nodes) == 0 {
		return true
	}
	outDeg := make(map[string]int)
	inDeg := make(map[string]int)
	for _, e := range edges {
		outDeg[e.Source]++
		inDeg[e.Target]++
	}
	for _, node := range nodes {
		if outDeg[node.ID] > 1 || inDeg[node.ID] > 1 {
			return false
		}
	}
	return len(edges) == len(nodes)-1 || (len(nodes) == 1 && len(edges) == 0)
}

// regenerateSerialEdges connects nodes in declared order, the
// deterministic fallback when the LLM's edges branch or orphan a node.
func (n *PlannerNode) regenerateSerialEdges(nodes []config.NodeCfg) []config.EdgeCfg {
	edges := make([]config.EdgeCfg, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		edges = append(edges, config.EdgeCfg{Source: nodes[i].ID, Target: nodes[i+1].ID})
	}
	return edges
}

func (n *PlannerNode) instantiate(cfgs []config.NodeCfg) ([]Node, error) {
	nodes := make([]Node, 0, len(cfgs))
	for _, cfg := range cfgs {
		built, err := n.factory.Build(cfg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, built)
	}
	return nodes, nil
}
