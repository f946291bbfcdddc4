package flow

import (
	"fmt"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/node"
)

// Graph is the instantiated, adjacency-indexed form of a config.FlowConfig,
// built once by BuildFromConfig and reused across every request that
// invokes this flow, per §4.4.
type Graph struct {
	nodes   map[string]node.Node
	order   []string // insertion order, for the "first node inserted" start fallback
	adj     map[string][]string
	inDeg   map[string]int
	startID string
}

// syntheticStartID/syntheticEndID name the nodes BuildFromConfig adds
// when a FlowConfig declares none, per §4.4. The synthesized start node
// gets an edge to the first declared node; the synthesized end node is
// added without any incoming edge.
const (
	syntheticStartID = "__start__"
	syntheticEndID   = "__end__"
)

// BuildFromConfig instantiates every node via factory, synthesizes a
// start/end node if the config declares none, builds the adjacency
// list (honoring EdgeCfg.SourceIndex placement), computes in-degree,
// and chooses the start node per §4.4's priority order.
func BuildFromConfig(cfg config.FlowConfig, factory *node.Factory) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]node.Node, len(cfg.Nodes)+2),
		adj:   make(map[string][]string),
		inDeg: make(map[string]int),
	}

	hasStart, hasEnd := false, false
	for _, nc := range cfg.Nodes {
		built, err := factory.Build(nc)
		if err != nil {
			return nil, fmt.Errorf("flow: building node %q: %w", nc.ID, err)
		}
		g.addNode(nc.ID, built)
		if built.Category() == CategoryStart || built.Implementation() == "start" || nc.Data.IsStartNode {
			hasStart = true
		}
		if built.Category() == CategoryEnd || built.Implementation() == "end" || nc.Data.IsEndNode {
			hasEnd = true
		}
	}

	edges := cfg.Edges
	if len(edges) == 0 {
		edges = edgesFromConnections(cfg.Nodes)
	}

	if !hasStart {
		startNode, err := factory.Build(config.NodeCfg{ID: syntheticStartID, Implementation: "start", Data: config.NodeData{Label: "start"}})
		if err != nil {
			return nil, fmt.Errorf("flow: synthesizing start node: %w", err)
		}
		g.addNode(syntheticStartID, startNode)
		if len(g.order) > 1 {
			edges = append([]config.EdgeCfg{{Source: syntheticStartID, Target: g.order[0]}}, edges...)
		}
	}
	if !hasEnd {
		endNode, err := factory.Build(config.NodeCfg{ID: syntheticEndID, Implementation: "end", Data: config.NodeData{Label: "end"}})
		if err != nil {
			return nil, fmt.Errorf("flow: synthesizing end node: %w", err)
		}
		g.addNode(syntheticEndID, endNode)
	}

	for _, e := range edges {
		g.addEdge(e)
	}

	g.startID = g.chooseStart(cfg.Nodes)
	return g, nil
}

func (g *Graph) addNode(id string, n node.Node) {
	g.nodes[id] = n
	g.order = append(g.order, id)
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = nil
	}
}

// addEdge places target at SourceIndex when supplied, else appends,
// per §4.4's "edge sourceIndex places the target at that slot, else
// appends" rule.
func (g *Graph) addEdge(e config.EdgeCfg) {
	list := g.adj[e.Source]
	if e.SourceIndex != nil {
		idx := *e.SourceIndex
		for len(list) <= idx {
			list = append(list, "")
		}
		list[idx] = e.Target
	} else {
		list = append(list, e.Target)
	}
	g.adj[e.Source] = list
	g.inDeg[e.Target]++
}

// edgesFromConnections builds edges from each NodeCfg's own
// connections list, the fallback used when a FlowConfig has no
// top-level edges, per §4.4.
func edgesFromConnections(nodes []config.NodeCfg) []config.EdgeCfg {
	var edges []config.EdgeCfg
	for _, n := range nodes {
		for i, target := range n.Connections {
			if target == "" {
				continue
			}
			idx := i
			edges = append(edges, config.EdgeCfg{Source: n.ID, Target: target, SourceIndex: &idx})
		}
	}
	return edges
}

// chooseStart implements §4.4's priority: explicit start flag in a
// NodeCfg, else any node of category START, else any implementation
// "start", else the first node with in-degree 0, else the first node
// inserted.
func (g *Graph) chooseStart(cfgs []config.NodeCfg) string {
	for _, nc := range cfgs {
		if nc.Data.IsStartNode {
			return nc.ID
		}
	}
	for _, id := range g.order {
		if g.nodes[id].Category() == CategoryStart {
			return id
		}
	}
	for _, id := range g.order {
		if g.nodes[id].Implementation() == "start" {
			return id
		}
	}
	for _, id := range g.order {
		if g.inDeg[id] == 0 {
			return id
		}
	}
	if len(g.order) > 0 {
		return g.order[0]
	}
	return ""
}

// Next returns the node IDs wired out of id, in connection order.
func (g *Graph) Next(id string) []string {
	return g.adj[id]
}

// Node looks up an instantiated node by ID.
func (g *Graph) Node(id string) (node.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}
