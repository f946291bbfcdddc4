package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryKind tags a stored memory's durability class, per spec.md
// §4.3: raw conversation turns default to subconscious.
type MemoryKind string

const (
	MemoryShortTerm    MemoryKind = "short_term"
	MemoryLongTerm     MemoryKind = "long_term"
	MemorySubconscious MemoryKind = "subconscious"
)

// Memory is one remembered fact/turn.
type Memory struct {
	UserID    string     `json:"user_id"`
	AgentName string     `json:"agent_name"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// DurableMemoryStore is the optional persistence surface a Pipeline
// writes through to when a database session is present in the
// context, implemented by storage.Store.
type DurableMemoryStore interface {
	SaveMemory(ctx context.Context, m Memory) error
	SearchMemories(ctx context.Context, userID, query string, limit int) ([]Memory, error)
}

// memoryStore is the in-process short-term bucket, always written to
// regardless of whether a durable store is attached.
type memoryStore struct {
	mu      sync.RWMutex
	entries []Memory
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (m *memoryStore) add(mem Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, mem)
}

func (m *memoryStore) search(userID, query string) []Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	var out []Memory
	for _, e := range m.entries {
		if userID != "" && e.UserID != userID {
			continue
		}
		if strings.Contains(strings.ToLower(e.Content), q) {
			out = append(out, e)
		}
	}
	return out
}

// RememberUserMessage writes the user's message into the short-term
// bucket and, if durable is non-nil, the durable memories store, typed
// subconscious per spec.md §4.3.
func (p *Pipeline) RememberUserMessage(ctx context.Context, durable DurableMemoryStore, userID, agentName, content string) {
	p.remember(ctx, durable, userID, agentName, MemorySubconscious, "user: "+content)
}

// RememberAgentResponse writes the agent's reply.
func (p *Pipeline) RememberAgentResponse(ctx context.Context, durable DurableMemoryStore, userID, agentName, content string) {
	p.remember(ctx, durable, userID, agentName, MemorySubconscious, "assistant: "+content)
}

// RememberDialogTurn writes a combined user+assistant turn in one call.
func (p *Pipeline) RememberDialogTurn(ctx context.Context, durable DurableMemoryStore, userID, agentName, userMsg, agentMsg string) {
	p.remember(ctx, durable, userID, agentName, MemorySubconscious, "user: "+userMsg+"\nassistant: "+agentMsg)
}

// RememberKnowledge writes a non-conversational fact under an explicit
// kind (short_term or long_term).
func (p *Pipeline) RememberKnowledge(ctx context.Context, durable DurableMemoryStore, userID, agentName string, kind MemoryKind, content string) {
	p.remember(ctx, durable, userID, agentName, kind, content)
}

func (p *Pipeline) remember(ctx context.Context, durable DurableMemoryStore, userID, agentName string, kind MemoryKind, content string) {
	mem := Memory{UserID: userID, AgentName: agentName, Kind: kind, Content: content, CreatedAt: time.Now()}
	p.memories.add(mem)
	if durable != nil {
		_ = durable.SaveMemory(ctx, mem) // persistence errors are dropped here and never fail the response (§7)
	}
}

// SearchMemory queries the in-process bucket first, then the durable
// store if present, per §4.6's pipeline_search_memory contract.
func (p *Pipeline) SearchMemory(ctx context.Context, durable DurableMemoryStore, userID, query string, limit int) []Memory {
	results := p.memories.search(userID, query)
	if len(results) >= limit && limit > 0 {
		return results[:limit]
	}
	if durable != nil {
		more, err := durable.SearchMemories(ctx, userID, query, limit)
		if err == nil {
			results = append(results, more...)
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
