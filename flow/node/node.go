// Package node implements the Flow Nodes (C5): one type per node kind
// (LLMNode, ToolNode, RouterNode, AutoParamNode, PlannerNode,
// CompositeNode, StartNode, EndNode) sharing the base contract of
// spec.md §4.5.
//
// Grounded on reasoning/chain_of_thought_strategy.go's tool-loop and
// JSON-parsing patterns, and on original_source/agents/flow/nodes/*.py
// for exact per-node-kind semantics.
package node

import (
	"context"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/pipeline"
	"github.com/flowctl/convoy/tool"
)

// Node is the shared contract every node kind implements. ExecuteStream
// receives (userID, message, context, agentName) per spec.md §4.5 and
// emits chunks on the returned channel, closing it when done.
type Node interface {
	ID() string
	Category() ftypes.Category
	Implementation() string
	Label() string
	ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error)
	// RequiresMount reports whether the engine must call its
	// mount_provider hook before executing this node (§4.4).
	RequiresMount() bool
}

// Context is the per-execution input every node receives, bundling the
// request-scoped values a node's ExecuteStream needs: the conversation
// state plus service handles (tools/LLM/KB) supplied by the caller
// (agent layer) rather than looked up globally, following §9's
// composition-over-inheritance guidance.
type Context struct {
	UserID    string
	Message   string
	AgentName string
	SessionID string

	State     *FlowState
	Services  Services
	Workspace *tool.Workspace
}

// Services is implemented by the agent layer and injected into every
// node; it keeps node.go from importing tool/llm/kb directly and lets
// tests supply fakes.
type Services interface {
	LLM(modelID string) (LLMCaller, error)
	ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (ToolResult, error)
	FindToolByName(name string) (ToolDescriptor, bool)
	SearchKnowledgeBase(ctx context.Context, kbID, query string, maxResults int) (KBResult, error)
	MountProvider(ctx context.Context, mountSpec map[string]interface{}) error
	// HighestScoredTools returns the highest-scored tool per
	// (type, category) group, for PlannerNode's tool enumeration (§4.5).
	HighestScoredTools() []ToolDescriptor
}

// LLMCaller is the minimal LLM surface a node needs: complete or
// stream a chat completion from a system prompt and a user prompt.
type LLMCaller interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error)
	Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, error)
}

// ToolResult mirrors tool.Result's fields a node needs without
// depending on the tool package's Tool interface.
type ToolResult struct {
	Success  bool
	Content  string
	Output   interface{}
	Error    string
	ToolName string
}

// ToolDescriptor is a tool's name/schema as seen by AutoParamNode and
// ToolNode's suffix-match search.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// KBResult is the shape SearchKnowledgeBase returns, trimmed to what
// nodes need (full result lives in package kb).
type KBResult struct {
	Response string
	Sources  []string
}

// Factory maps implementation strings to per-node-kind constructors
// (the built-in ones are registered in factory.go), acting as the Node
// Registry of spec.md §4.4.
type Factory struct {
	constructors map[string]func(cfg config.NodeCfg) (Node, error)
}

func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]func(cfg config.NodeCfg) (Node, error))}
	f.registerBuiltins()
	return f
}

// Register adds or overrides a node constructor keyed by
// implementation string, letting deployments add custom node kinds.
func (f *Factory) Register(implementation string, ctor func(cfg config.NodeCfg) (Node, error)) {
	f.constructors[implementation] = ctor
}

// Build instantiates a Node from its config via the registered
// constructor for cfg.Implementation.
func (f *Factory) Build(cfg config.NodeCfg) (Node, error) {
	ctor, ok := f.constructors[cfg.Implementation]
	if !ok {
		return nil, &UnknownImplementationError{Implementation: cfg.Implementation}
	}
	return ctor(cfg)
}

// UnknownImplementationError is returned by Build for an
// unregistered implementation string.
type UnknownImplementationError struct {
	Implementation string
}

func (e *UnknownImplementationError) Error() string {
	return "node: unknown implementation " + e.Implementation
}

// FlowState is a thin typed facade over a pipeline.Pipeline's
// namespace surface (C3), giving nodes the flow_state/nodes/global
// scratchpad described in spec.md §4.3 without each node hand-rolling
// map access.
type FlowState struct {
	pipe *pipeline.Pipeline
}

func NewFlowState(pipe *pipeline.Pipeline) *FlowState {
	return &FlowState{pipe: pipe}
}

const (
	nsGlobal = "global"
	nsNodes  = "nodes"
)

func (s *FlowState) dims(ns string) pipeline.Dimensions {
	return pipeline.Dimensions{Namespace: ns}
}

// Get reads a variable from the global scratchpad.
func (s *FlowState) Get(key string) (interface{}, bool) {
	return s.pipe.Get(s.dims(nsGlobal), key)
}

// GetString is a convenience wrapper returning "" for a missing or
// non-string value.
func (s *FlowState) GetString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Set writes a variable to the global scratchpad.
func (s *FlowState) Set(key string, value interface{}) {
	s.pipe.Put(s.dims(nsGlobal), key, value)
}

// LastOutput returns flow_state.last_output.
func (s *FlowState) LastOutput() interface{} {
	v, _ := s.Get("last_output")
	return v
}

// SetLastOutput writes flow_state.last_output.
func (s *FlowState) SetLastOutput(v interface{}) {
	s.Set("last_output", v)
}

// SaveOutput implements §4.5's save_output: appends to
// flow_state.nodes[node_id].outputs, updates last_output, and if
// saveAs is non-empty also writes that key to the global scratchpad.
func (s *FlowState) SaveOutput(nodeID string, output interface{}, saveAs string) {
	existing, _ := s.pipe.Get(s.dims(nsNodes), nodeID)
	outputs, _ := existing.([]interface{})
	outputs = append(outputs, output)
	s.pipe.Put(s.dims(nsNodes), nodeID, outputs)
	s.SetLastOutput(output)
	if saveAs != "" {
		s.Set(saveAs, output)
	}
}

// NodeOutputs returns everything saved by a given node so far.
func (s *FlowState) NodeOutputs(nodeID string) []interface{} {
	v, ok := s.pipe.Get(s.dims(nsNodes), nodeID)
	if !ok {
		return nil
	}
	outputs, _ := v.([]interface{})
	return outputs
}

// AppendSavedFile appends a path to flow_state.saved_files, used by
// ToolNode's search-result persistence.
func (s *FlowState) AppendSavedFile(path string) {
	existing, _ := s.Get("saved_files")
	files, _ := existing.([]string)
	files = append(files, path)
	s.Set("saved_files", files)
}

// SavedFiles returns flow_state.saved_files.
func (s *FlowState) SavedFiles() []string {
	v, ok := s.Get("saved_files")
	if !ok {
		return nil
	}
	files, _ := v.([]string)
	return files
}

// RouterDecision is flow_state.router_decision's shape.
type RouterDecision struct {
	Field          string      `json:"field"`
	Value          interface{} `json:"value"`
	SelectedBranch bool        `json:"selected_branch"`
}

func (s *FlowState) SetRouterDecision(d RouterDecision) {
	s.Set("router_decision", d)
}

func (s *FlowState) RouterDecision() (RouterDecision, bool) {
	v, ok := s.Get("router_decision")
	if !ok {
		return RouterDecision{}, false
	}
	d, ok := v.(RouterDecision)
	return d, ok
}
