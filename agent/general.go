package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/llm"
)

// GeneralAgent answers directly from the LLM, optionally augmented
// with bound knowledge bases and able to invoke bound tools via
// TOOL_CALL lines, per §4.6.
type GeneralAgent struct {
	Name                string
	SystemPrompt        string
	BoundTools          []string
	BoundKnowledgeBases []string
	ModelID             string

	rt       *Runtime
	contexts *contextStore
}

func NewGeneralAgent(name, systemPrompt string, boundTools, boundKBs []string, modelID string, rt *Runtime) *GeneralAgent {
	return &GeneralAgent{
		Name:                name,
		SystemPrompt:        systemPrompt,
		BoundTools:          boundTools,
		BoundKnowledgeBases: boundKBs,
		ModelID:             modelID,
		rt:                  rt,
		contexts:            newContextStore(),
	}
}

var toolCallLine = regexp.MustCompile(`(?m)^TOOL_CALL:\s*(\S+)\s*(.*)$`)

// Stream implements Agent for GeneralAgent. GeneralAgent has no
// per-node granularity to report, so onNode is never invoked.
func (a *GeneralAgent) Stream(ctx context.Context, userID, message, sessionID string, onNode func(MessageNode)) (<-chan ftypes.Chunk, error) {
	return a.ProcessMessageStream(ctx, userID, message, sessionID), nil
}

// ProcessMessageStream implements §4.6's 8-step GeneralAgent contract.
func (a *GeneralAgent) ProcessMessageStream(ctx context.Context, userID, message, sessionID string) <-chan ftypes.Chunk {
	out := make(chan ftypes.Chunk, 16)
	go a.run(ctx, userID, message, sessionID, out)
	return out
}

func (a *GeneralAgent) run(ctx context.Context, userID, message, sessionID string, out chan<- ftypes.Chunk) {
	defer close(out)

	// 1. Restore or create AgentContext.
	agentCtx := a.contexts.get(ctx, a.rt, userID, sessionID)

	// 2. Build conversation history.
	history := buildConversationHistory(agentCtx, DefaultHistoryWindow, message)

	// 3. Augment system prompt with KB context and bound-tool instructions.
	systemPrompt := a.SystemPrompt
	if len(a.BoundKnowledgeBases) > 0 {
		systemPrompt += "\n\n" + a.kbContext(ctx, message)
	}
	if len(a.BoundTools) > 0 {
		systemPrompt += "\n\nYou may use the following tools: " + strings.Join(a.BoundTools, ", ") +
			". Emit a line `TOOL_CALL: <server_tool> <args>` when tool use is needed."
	}

	provider, ok := a.rt.LLM.Get(a.ModelID)
	if !ok {
		a.emitError(out, sessionID, fmt.Sprintf("unknown llm config %q", a.ModelID))
		return
	}

	// 4. Stream LLM tokens.
	req := llm.Request{Messages: append([]llm.Message{{Role: "system", Content: systemPrompt}}, history...)}
	streamCh, err := provider.Stream(ctx, req)
	if err != nil {
		a.emitError(out, sessionID, err.Error())
		return
	}
	var accumulated string
	for chunk := range streamCh {
		if chunk.Type == "text" && chunk.Text != "" {
			accumulated += chunk.Text
			if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.Content, SessionID: sessionID, AgentName: a.Name, Content: chunk.Text}) {
				return
			}
		}
	}

	toolsUsed := []string{}

	// 5/6. Parse TOOL_CALL lines, else infer a default call.
	calls := a.parseToolCalls(accumulated)
	if len(calls) == 0 && len(a.BoundTools) > 0 {
		if name, params, ok := defaultToolCall(a.BoundTools, message); ok {
			calls = append(calls, toolCall{name: name, params: params})
		}
	}
	for _, call := range calls {
		result, err := executeTool(ctx, a.rt.Tools, call.name, call.params)
		toolsUsed = append(toolsUsed, call.name)
		content := result.Content
		if err != nil {
			content = err.Error()
		}
		accumulated += content
		if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.ToolResult, SessionID: sessionID, AgentName: a.Name, Content: content,
			Metadata: ftypes.Metadata{"tool_name": call.name}}) {
			return
		}
		if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.Content, SessionID: sessionID, AgentName: a.Name, Content: content}) {
			return
		}
	}

	// 7. Satisfaction loop (once).
	if len(a.BoundTools) > 0 {
		satisfied, refined := a.checkSatisfaction(ctx, provider, message, accumulated)
		if !satisfied && refined != "" {
			if name, params, ok := defaultToolCall(a.BoundTools, refined); ok {
				params["query"] = refined
				result, err := executeTool(ctx, a.rt.Tools, name, params)
				toolsUsed = append(toolsUsed, name)
				content := result.Content
				if err != nil {
					content = err.Error()
				}
				accumulated += content
				if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.ToolResult, SessionID: sessionID, AgentName: a.Name, Content: content,
					Metadata: ftypes.Metadata{"tool_name": name}}) {
					return
				}
				if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.Content, SessionID: sessionID, AgentName: a.Name, Content: content}) {
					return
				}
			}
		}
	}

	agentCtx.Messages = append(agentCtx.Messages, Message{Role: "user", Content: message}, Message{Role: "assistant", Content: accumulated, AgentName: a.Name})
	if a.rt.Pipeline != nil {
		rememberDialogTurn(ctx, a.rt, userID, a.Name, sessionID, message, accumulated)
	}

	// 8. Final + done.
	if !a.emit(ctx, out, ftypes.Chunk{Type: ftypes.Final, SessionID: sessionID, AgentName: a.Name, Content: accumulated, IsEnd: true}) {
		return
	}
	a.emit(ctx, out, ftypes.Chunk{Type: ftypes.Done, SessionID: sessionID, AgentName: a.Name, IsEnd: true,
		Metadata: ftypes.Metadata{"tools_used": toolsUsed}})
}

type toolCall struct {
	name   string
	params map[string]interface{}
}

// parseToolCalls extracts TOOL_CALL lines from the accumulated
// response, per §4.6 step 5. Args after the tool name are treated as
// a single "query" parameter; a richer grammar is unnecessary for the
// line shape the prompt instructs the model to emit.
func (a *GeneralAgent) parseToolCalls(text string) []toolCall {
	matches := toolCallLine.FindAllStringSubmatch(text, -1)
	calls := make([]toolCall, 0, len(matches))
	for _, m := range matches {
		calls = append(calls, toolCall{name: m[1], params: map[string]interface{}{"query": strings.TrimSpace(m[2])}})
	}
	return calls
}

func (a *GeneralAgent) kbContext(ctx context.Context, message string) string {
	var sb strings.Builder
	sb.WriteString("Relevant knowledge:\n")
	for _, kbID := range a.BoundKnowledgeBases {
		if a.rt.KB == nil {
			continue
		}
		result, err := a.rt.KB.Query(ctx, kbID, message, "", 3)
		if err != nil {
			continue
		}
		sb.WriteString(result.Response)
		sb.WriteString("\n")
	}
	return sb.String()
}

// checkSatisfaction implements §4.6 step 7: ask the LLM to judge
// whether the accumulated response satisfies the user, returning a
// refined query on dissatisfaction.
func (a *GeneralAgent) checkSatisfaction(ctx context.Context, provider llm.Provider, message, accumulated string) (bool, string) {
	system := "Given the user's request and the assistant's response so far, decide if the response is satisfactory. " +
		`Respond with JSON only: {"satisfied": bool, "refined_query": string}.`
	user := fmt.Sprintf("request: %s\nresponse: %s", message, accumulated)
	resp, err := provider.Complete(ctx, llm.Request{Messages: []llm.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}})
	if err != nil {
		return true, ""
	}
	v := parseVerdict(resp.Content)
	return v.Satisfied, v.RefinedQuery
}

type satisfactionVerdict struct {
	Satisfied    bool   `json:"satisfied"`
	RefinedQuery string `json:"refined_query"`
}

// parseVerdict extracts {satisfied, refined_query} from a raw LLM
// response, defaulting to satisfied=true (stop looping) on any parse
// failure per §7's DataShapeError fallback posture.
func parseVerdict(raw string) satisfactionVerdict {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	v := satisfactionVerdict{Satisfied: true}
	if start < 0 || end <= start {
		return v
	}
	_ = json.Unmarshal([]byte(raw[start:end+1]), &v)
	return v
}

func (a *GeneralAgent) emit(ctx context.Context, out chan<- ftypes.Chunk, c ftypes.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *GeneralAgent) emitError(out chan<- ftypes.Chunk, sessionID, msg string) {
	out <- ftypes.Chunk{Type: ftypes.Error, SessionID: sessionID, AgentName: a.Name, Content: msg}
	out <- ftypes.Chunk{Type: ftypes.Done, SessionID: sessionID, AgentName: a.Name, IsEnd: true}
}
