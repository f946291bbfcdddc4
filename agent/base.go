// Package agent implements the Agent Layer (C6): GeneralAgent and
// FlowDrivenAgent share a common base handling conversation history,
// memory write-through, and tool execution, composed rather than
// inherited per spec.md §9's "favor composition" design note.
//
// Grounded on reasoning/chain_of_thought_strategy.go's iteration loop
// and state threading, generalized to the two agent kinds of §4.6.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/llm"
	"github.com/flowctl/convoy/pipeline"
	"github.com/flowctl/convoy/pkgerrors"
	"github.com/flowctl/convoy/storage"
	"github.com/flowctl/convoy/tool"
)

// Agent is the uniform surface the chat API surface (C9) drives both
// GeneralAgent and FlowDrivenAgent through, letting it persist
// per-node output via onNode without knowing which kind it's talking
// to.
type Agent interface {
	Stream(ctx context.Context, userID, message, sessionID string, onNode func(MessageNode)) (<-chan ftypes.Chunk, error)
}

// DefaultHistoryWindow bounds how many prior turns are rendered into an
// LLM's conversation history, per §4.6 step 2 ("last N messages,
// default 10").
const DefaultHistoryWindow = 10

// Message is one turn of conversation, independent of how it's
// persisted (storage.Message covers that).
type Message struct {
	Role      string // user | assistant | system | tool
	Content   string
	AgentName string
	Timestamp time.Time
}

// AgentContext is restored or created per (user_id, session_id) and
// holds the in-memory conversation the agent is building on, per
// §4.6 step 1.
type AgentContext struct {
	UserID    string
	SessionID string
	Messages  []Message
	Metadata  map[string]interface{}
}

// Runtime bundles the collaborators every agent needs: an LLM
// provider registry, the tool registry, a KB search function, and the
// Pipeline (C3) for memory write-through — the "common AgentRuntime
// struct" composition spec.md §9 calls for, in place of a deep
// inheritance hierarchy.
type Runtime struct {
	LLM      *llm.Registry
	Tools    *tool.Registry
	KB       KnowledgeSearcher
	Pipeline *pipeline.Pipeline
	Durable  pipeline.DurableMemoryStore
	Store    *storage.Store
}

// KnowledgeSearcher is the minimal surface C7 exposes to the agent
// layer, kept narrow so this package doesn't need to import the kb
// package's full retrieval configuration surface.
type KnowledgeSearcher interface {
	Query(ctx context.Context, kbID, query, userID string, maxResults int) (node.KBResult, error)
}

// contexts is a per-agent map keyed by user_id, shared across
// requests with single-writer-per-user semantics, per §5's resource
// model ("Agent contexts is a per-agent map keyed by user_id").
type contextStore struct {
	byUser map[string]*AgentContext
}

func newContextStore() *contextStore {
	return &contextStore{byUser: make(map[string]*AgentContext)}
}

// get restores the in-process AgentContext for (userID, sessionID), or
// creates one. When no in-process context exists but a db Store is
// configured, it rebuilds the message list from persisted chat
// messages for sessionID first, per §4.6 step 1, instead of starting
// a new process with no memory of an ongoing session.
func (s *contextStore) get(ctx context.Context, rt *Runtime, userID, sessionID string) *AgentContext {
	if existing, ok := s.byUser[userID]; ok && existing.SessionID == sessionID {
		return existing
	}
	agentCtx := &AgentContext{UserID: userID, SessionID: sessionID, Metadata: map[string]interface{}{}}
	if rt != nil && rt.Store != nil && sessionID != "" {
		if persisted, err := rt.Store.MessagesBySession(ctx, sessionID); err == nil {
			for _, m := range persisted {
				agentCtx.Messages = append(agentCtx.Messages, Message{
					Role:      m.Type,
					Content:   m.Content,
					AgentName: m.AgentName,
					Timestamp: m.CreatedAt,
				})
			}
		}
	}
	s.byUser[userID] = agentCtx
	return agentCtx
}

// buildConversationHistory renders the last n messages plus the
// current user message as role:content turns, per §4.6 step 2.
func buildConversationHistory(ctx *AgentContext, n int, currentMessage string) []llm.Message {
	start := 0
	if len(ctx.Messages) > n {
		start = len(ctx.Messages) - n
	}
	history := make([]llm.Message, 0, n+1)
	for _, m := range ctx.Messages[start:] {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, llm.Message{Role: "user", Content: currentMessage})
	return history
}

// dims builds the Pipeline dimensions for a given user/agent/session,
// per §4.3's "dimensions extracted from user_id/agent_name/session_id".
func dims(userID, agentName, sessionID string) pipeline.Dimensions {
	return pipeline.Dimensions{UserID: userID, AgentID: agentName, SessionID: sessionID, TopicID: "general"}
}

// rememberUserMessage/rememberAgentResponse/rememberDialogTurn write
// both into the Pipeline's in-process bucket and, if a durable store
// is configured, into the persistent memories store, per §4.3/§4.6.
func rememberUserMessage(ctx context.Context, rt *Runtime, userID, agentName, sessionID, content string) {
	rt.Pipeline.RememberUserMessage(ctx, rt.Durable, userID, agentName, content)
}

func rememberAgentResponse(ctx context.Context, rt *Runtime, userID, agentName, sessionID, content string) {
	rt.Pipeline.RememberAgentResponse(ctx, rt.Durable, userID, agentName, content)
}

func rememberDialogTurn(ctx context.Context, rt *Runtime, userID, agentName, sessionID, userMsg, agentMsg string) {
	rt.Pipeline.RememberDialogTurn(ctx, rt.Durable, userID, agentName, userMsg, agentMsg)
}

// pipelineSearchMemory queries the in-process pipeline first, then the
// durable store if configured, per §4.6's "pipeline_search_memory"
// helper.
func pipelineSearchMemory(ctx context.Context, rt *Runtime, userID, query string, limit int) []pipeline.Memory {
	return rt.Pipeline.SearchMemory(ctx, rt.Durable, userID, query, limit)
}

// executeTool runs a tool through the registry with the schema
// validation §4.6 calls for: required parameters (per the tool's
// JSON-Schema) must be present before dispatch, else an
// ExecutionError-class error is raised before ever reaching the
// registry's scoring path.
func executeTool(ctx context.Context, tools *tool.Registry, name string, params map[string]interface{}) (tool.Result, error) {
	t, ok := tools.Get(name)
	if !ok {
		return tool.Result{}, pkgerrors.New(pkgerrors.KindRouting, "agent", "execute_tool", "tool not found: "+name, nil)
	}
	schema := t.GetInfo().ToJSONSchema()
	for _, field := range requiredFields(schema) {
		if _, ok := params[field]; !ok {
			return tool.Result{}, pkgerrors.New(pkgerrors.KindExecution, "agent", "execute_tool", "missing required parameter "+field, nil)
		}
	}
	return tools.Execute(ctx, name, params)
}

func requiredFields(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// defaultToolCall infers a tool call when the LLM didn't emit an
// explicit TOOL_CALL line: prefer a bound tool whose name contains
// "search", else the first bound tool, per §4.6 step 5.
func defaultToolCall(boundTools []string, query string) (name string, params map[string]interface{}, ok bool) {
	if len(boundTools) == 0 {
		return "", nil, false
	}
	chosen := boundTools[0]
	for _, t := range boundTools {
		if strings.Contains(strings.ToLower(t), "search") {
			chosen = t
			break
		}
	}
	return chosen, map[string]interface{}{"query": query}, true
}
