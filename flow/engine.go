package flow

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/tool"
)

// maxSteps is the hard cap on node visits per run, preventing a
// misconfigured or cyclic graph from running forever, per §4.4.
const maxSteps = 1000

// OnChunkHook may transform or drop an outgoing chunk before the
// caller sees it, per §4.4's on_chunk hook.
type OnChunkHook func(Chunk) (Chunk, bool)

// OnFinalHook is invoked once with the final chunk, for persistence,
// per §4.4's on_final hook.
type OnFinalHook func(Chunk)

// Engine walks a Graph node by node, emitting node_start/node_complete
// (or node_error) chunks and forwarding the chunks each node produces,
// per §4.4. Final chunks from nodes are held back and done chunks from
// nested walks are dropped, so a walk ends with exactly one final (the
// last one a node produced, else one built from last_output) followed
// by one done.
type Engine struct {
	graph    *Graph
	factory  *node.Factory
	onChunk  OnChunkHook
	onFinal  OnFinalHook
}

// New wraps a built Graph as a runnable Engine. factory is retained so
// nested CompositeNode/PlannerNode subgraphs can be built with the
// same node-kind registrations as the parent flow.
func New(g *Graph, factory *node.Factory) *Engine {
	return &Engine{graph: g, factory: factory}
}

// BuildEngine constructs a Graph via BuildFromConfig and wraps it as an Engine,
// additionally wiring CompositeNode and PlannerNode into factory
// (they need a SubEngine/PlannerBuildAndRun only this package can
// supply), per §4.4's "build_from_config({nodes, edges}) → Engine".
func BuildEngine(cfg config.FlowConfig, factory *node.Factory) (*Engine, error) {
	factory.Register("composite", node.NewCompositeNodeFactory(func(subflow map[string]interface{}) (node.SubEngine, error) {
		subCfg, err := decodeFlowConfig(subflow)
		if err != nil {
			return nil, err
		}
		return BuildEngine(subCfg, factory)
	}))
	factory.Register("planner", node.NewPlannerNodeFactory(factory, runPlannedSubgraph))

	g, err := BuildFromConfig(cfg, factory)
	if err != nil {
		return nil, err
	}
	return New(g, factory), nil
}

// OnChunk sets the engine's on_chunk hook.
func (e *Engine) OnChunk(hook OnChunkHook) { e.onChunk = hook }

// OnFinal sets the engine's on_final hook.
func (e *Engine) OnFinal(hook OnFinalHook) { e.onFinal = hook }

// RunStream walks the graph starting at start (or the graph's chosen
// start node if empty), forwarding every node's chunks, per §4.4's
// execution walk.
func (e *Engine) RunStream(ctx context.Context, userID, message string, state *node.FlowState, services node.Services, workspace *tool.Workspace, agentName, sessionID string) (<-chan Chunk, error) {
	start := e.graph.startID
	out := make(chan Chunk, 16)
	go e.walk(ctx, start, userID, message, state, services, workspace, agentName, sessionID, out)
	return out, nil
}

// Run is the non-streaming convenience form: it drains RunStream and
// returns accumulated message content, per §4.4's
// "run(...) → [Message]" contract.
func (e *Engine) Run(ctx context.Context, userID, message string, state *node.FlowState, services node.Services, workspace *tool.Workspace, agentName, sessionID string) (string, error) {
	ch, err := e.RunStream(ctx, userID, message, state, services, workspace, agentName, sessionID)
	if err != nil {
		return "", err
	}
	var accumulated string
	for chunk := range ch {
		if chunk.Type == ChunkContent || chunk.Type == ChunkToolResult {
			accumulated += chunk.Content
		}
	}
	return accumulated, nil
}

func (e *Engine) walk(ctx context.Context, start, userID, message string, state *node.FlowState, services node.Services, workspace *tool.Workspace, agentName, sessionID string, out chan<- Chunk) {
	defer close(out)

	emit := func(c Chunk) bool {
		if e.onChunk != nil {
			transformed, keep := e.onChunk(c)
			if !keep {
				return true
			}
			c = transformed
		}
		if c.Type == ChunkFinal && e.onFinal != nil {
			e.onFinal(c)
		}
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	current := start
	halted := false
	var pendingFinal *Chunk
	var toolsUsed []string
	for step := 0; step < maxSteps && current != "" && !halted; step++ {
		n, ok := e.graph.Node(current)
		if !ok {
			break
		}

		if n.RequiresMount() {
			mountSpec := map[string]interface{}{"node_id": n.ID(), "implementation": n.Implementation()}
			if err := services.MountProvider(ctx, mountSpec); err != nil {
				if !emit(Chunk{Type: ChunkNodeError, AgentName: agentName, SessionID: sessionID, Content: err.Error(),
					Metadata: Metadata{"node_id": n.ID()}}) {
					return
				}
				halted = true
				break
			}
		}

		startChunk := Chunk{
			Type:      ChunkNodeStart,
			SessionID: sessionID,
			AgentName: agentName,
			Metadata: Metadata{
				"node_id":             n.ID(),
				"node_category":       string(n.Category()),
				"node_implementation": n.Implementation(),
				"node_name":           n.ID(),
				"node_label":          n.Label(),
			},
		}
		if !emit(startChunk) {
			return
		}

		nc := &node.Context{UserID: userID, Message: message, AgentName: agentName, SessionID: sessionID, State: state, Services: services, Workspace: workspace}
		nodeChunks, err := n.ExecuteStream(ctx, nc)
		if err != nil {
			if !emit(Chunk{Type: ChunkNodeError, AgentName: agentName, SessionID: sessionID, Content: err.Error(),
				Metadata: Metadata{"node_id": n.ID()}}) {
				return
			}
			halted = true
			break
		}

		var output string
		errored := false
		for chunk := range nodeChunks {
			chunk.SessionID = sessionID
			if chunk.Type == ChunkContent || chunk.Type == ChunkToolResult {
				output += chunk.Content
			}
			if chunk.Type == ChunkNodeError {
				errored = true
			}
			if chunk.Type == ChunkToolResult {
				if name, ok := chunk.Metadata["tool_name"].(string); ok && name != "" {
					toolsUsed = append(toolsUsed, name)
				}
			}
			if chunk.Type == ChunkFinal {
				held := chunk
				pendingFinal = &held
				continue
			}
			if chunk.Type == ChunkDone {
				continue
			}
			if !emit(chunk) {
				return
			}
		}

		completeType := ChunkNodeComplete
		if errored {
			halted = true
		}
		completeMeta := Metadata{"node_id": n.ID(), "output": output, "error": errored}
		if n.Category() == CategoryRouter {
			if decision, ok := state.RouterDecision(); ok {
				branch := "false"
				if decision.SelectedBranch {
					branch = "true"
				}
				completeMeta["selected_branch"] = branch
				completeMeta["field"] = decision.Field
				completeMeta["field_value"] = decision.Value
			}
		}
		if !emit(Chunk{
			Type:      completeType,
			SessionID: sessionID,
			AgentName: agentName,
			Metadata:  completeMeta,
		}) {
			return
		}
		if errored {
			break
		}

		current = e.nextNode(n, state)
	}

	final := Chunk{Type: ChunkFinal, SessionID: sessionID, AgentName: agentName, IsEnd: true}
	if pendingFinal != nil {
		final = *pendingFinal
	} else {
		final.Content, _ = state.LastOutput().(string)
	}
	if !emit(final) {
		return
	}
	emit(Chunk{Type: ChunkDone, SessionID: sessionID, AgentName: agentName, IsEnd: true,
		Metadata: Metadata{"tools_used": toolsUsed}})
}

// nextNode implements §4.4's next-node selection: ROUTER reads
// flow_state.router_decision.selected_branch (true→connections[0],
// false→connections[1], else connections[0]); END terminates;
// otherwise connections[0].
func (e *Engine) nextNode(n node.Node, state *node.FlowState) string {
	if n.Category() == CategoryEnd {
		return ""
	}
	conns := e.graph.Next(n.ID())
	if n.Category() == CategoryRouter {
		decision, ok := state.RouterDecision()
		if ok {
			if decision.SelectedBranch && len(conns) > 0 {
				return firstNonEmpty(conns, 0)
			}
			if !decision.SelectedBranch {
				if len(conns) > 1 {
					return firstNonEmpty(conns, 1)
				}
				// Router with only one outgoing edge always takes it
				// regardless of selected_branch, per §8's boundary case.
				return firstNonEmpty(conns, 0)
			}
		}
	}
	return firstNonEmpty(conns, 0)
}

func firstNonEmpty(conns []string, from int) string {
	for i := from; i < len(conns); i++ {
		if conns[i] != "" {
			return conns[i]
		}
	}
	return ""
}

// decodeFlowConfig converts a raw {nodes, edges} map (as produced by a
// PlannerNode or CompositeNode's subflow config) into a config.FlowConfig.
func decodeFlowConfig(raw map[string]interface{}) (config.FlowConfig, error) {
	var cfg config.FlowConfig
	nodesRaw, _ := raw["nodes"].([]interface{})
	for _, nr := range nodesRaw {
		m, ok := nr.(map[string]interface{})
		if !ok {
			continue
		}
		cfg.Nodes = append(cfg.Nodes, decodeNodeCfg(m))
	}
	edgesRaw, _ := raw["edges"].([]interface{})
	for _, er := range edgesRaw {
		m, ok := er.(map[string]interface{})
		if !ok {
			continue
		}
		edge := config.EdgeCfg{}
		if s, ok := m["source"].(string); ok {
			edge.Source = s
		}
		if t, ok := m["target"].(string); ok {
			edge.Target = t
		}
		cfg.Edges = append(cfg.Edges, edge)
	}
	return cfg, nil
}

func decodeNodeCfg(m map[string]interface{}) config.NodeCfg {
	nc := config.NodeCfg{}
	if id, ok := m["id"].(string); ok {
		nc.ID = id
	}
	if impl, ok := m["implementation"].(string); ok {
		nc.Implementation = impl
	}
	if cat, ok := m["category"].(string); ok {
		nc.Category = cat
	}
	if data, ok := m["data"].(map[string]interface{}); ok {
		if label, ok := data["label"].(string); ok {
			nc.Data.Label = label
		}
		if cfgMap, ok := data["config"].(map[string]interface{}); ok {
			nc.Data.Config = cfgMap
		}
	}
	return nc
}

// runPlannedSubgraph builds an ephemeral linear sub-engine from
// already-instantiated nodes/edges and runs it, reporting via the
// returned bool channel whether any node errored — the
// node.PlannerBuildAndRun a PlannerNode uses to execute what it plans.
func runPlannedSubgraph(ctx context.Context, nodes []node.Node, edges []config.EdgeCfg, nc *node.Context) (<-chan Chunk, <-chan bool) {
	g := &Graph{
		nodes: make(map[string]node.Node, len(nodes)),
		adj:   make(map[string][]string),
		inDeg: make(map[string]int),
	}
	for _, n := range nodes {
		g.addNode(n.ID(), n)
	}
	for _, e := range edges {
		g.addEdge(e)
	}
	if len(g.order) > 0 {
		g.startID = g.order[0]
	}

	out := make(chan Chunk, 16)
	failed := make(chan bool, 1)
	e := &Engine{graph: g}
	go func() {
		defer close(failed)
		branchFailed := false
		inner := make(chan Chunk, 16)
		go e.walk(ctx, g.startID, nc.UserID, nc.Message, nc.State, nc.Services, nc.Workspace, nc.AgentName, nc.SessionID, inner)
		for chunk := range inner {
			if chunk.Type == ChunkNodeError {
				branchFailed = true
			}
			out <- chunk
		}
		close(out)
		failed <- branchFailed
	}()
	return out, failed
}
