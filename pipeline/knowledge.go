package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowctl/convoy/llm"
)

const (
	keyUserKnowledge  = "user_knowledge"
	keyTopicLabels    = "topic_labels"
	keyAgentKnowledge = "agent_knowledge"
)

// ExtractKnowledge calls the LLM to distill cross-topic user
// preferences ("user knowledge"), a list of topic labels seen in
// subconscious conversation data, and per-(topic, agent) "agent
// knowledge" summaries, storing each back into well-known 3-D keys,
// per spec.md §4.3's knowledge-extraction operation.
func (p *Pipeline) ExtractKnowledge(ctx context.Context, provider llm.Provider, userID, agentName string) error {
	turns := p.memories.search(userID, "")
	if len(turns) == 0 {
		return nil
	}
	var transcript strings.Builder
	for _, t := range turns {
		if t.Kind != MemorySubconscious {
			continue
		}
		transcript.WriteString(t.Content)
		transcript.WriteString("\n")
	}

	prompt := fmt.Sprintf(
		"Given the conversation transcript below, return a JSON object with keys "+
			"\"user_knowledge\" (a short paragraph of cross-topic user preferences), "+
			"\"topics\" (a list of short topic label strings), and "+
			"\"agent_knowledge\" (a short paragraph summarizing what this agent has learned). "+
			"Transcript:\n%s", transcript.String())

	resp, err := provider.Complete(ctx, llm.Request{Messages: []llm.Message{
		{Role: "system", Content: "You extract structured memory summaries. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}})
	if err != nil {
		return newError(p.pipelineID, "extract_knowledge", "llm call failed", err)
	}

	var parsed struct {
		UserKnowledge  string   `json:"user_knowledge"`
		Topics         []string `json:"topics"`
		AgentKnowledge string   `json:"agent_knowledge"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		return newError(p.pipelineID, "extract_knowledge", "could not parse LLM output as JSON", err)
	}

	dims := DefaultDimensions(Dimensions{UserID: userID, AgentID: agentName})
	if parsed.UserKnowledge != "" {
		p.Put(Dimensions{UserID: userID}, keyUserKnowledge, parsed.UserKnowledge)
	}
	if len(parsed.Topics) > 0 {
		p.Put(Dimensions{UserID: userID}, keyTopicLabels, parsed.Topics)
	}
	if parsed.AgentKnowledge != "" {
		p.Put(dims, keyAgentKnowledge, parsed.AgentKnowledge)
	}
	return nil
}

// extractJSONObject strips a leading/trailing code fence or stray
// text around a JSON object, the same tolerant-parsing idiom used
// throughout the LLM-facing parts of this runtime (flow/node's LLMNode
// and the kg package's dynamic rule learner).
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
