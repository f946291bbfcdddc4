// Package pipeline implements the Pipeline Context Store (C3): a
// per-conversation working memory combining a legacy namespace store
// with a 3-D (user × topic × agent) store, bounded mutation history,
// memory-write helpers, and snapshot export/import/restore.
//
// Grounded on context/conversation.go's ConversationHistory (mutex
// guarded struct, bounded trim, exported stats) generalized to the
// two-surface model of spec.md §4.3.
package pipeline

import (
	"sync"
	"time"
)

const (
	// DefaultMaxHistory bounds the mutation history, mirroring
	// conversation.go's DefaultMaxMessages idiom applied to mutation
	// log entries instead of chat messages.
	DefaultMaxHistory = 1000
	MinMaxHistory      = 1
	MaxMaxHistory      = 10000
)

// Dimensions names the (user, topic, agent, session) coordinates a
// caller supplies; which of Put/Get/Has/Delete target the namespace
// surface vs. the 3-D surface depends on which of these are set.
type Dimensions struct {
	UserID    string
	TopicID   string
	AgentID   string
	SessionID string
	Namespace string
}

// DefaultDimensions fills documented defaults for missing fields, per
// spec.md §4.3 ("Dimensions are extracted ... with documented
// defaults").
func DefaultDimensions(d Dimensions) Dimensions {
	if d.TopicID == "" {
		d.TopicID = "general"
	}
	if d.AgentID == "" {
		d.AgentID = "default"
	}
	if d.Namespace == "" {
		d.Namespace = "global"
	}
	return d
}

// HistoryEntry records one mutation, mirroring spec.md §3's history
// entry shape.
type HistoryEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Action    string      `json:"action"` // put | delete
	Namespace string      `json:"namespace,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	TopicID   string      `json:"topic_id,omitempty"`
	AgentID   string      `json:"agent_id,omitempty"`
	Key       string      `json:"key"`
	OldValue  interface{} `json:"old_value,omitempty"`
	NewValue  interface{} `json:"new_value,omitempty"`
}

// File describes one tracked file attachment in a pipeline, per
// spec.md §3's Pipeline snapshot "files" map.
type File struct {
	Path     string                 `json:"path"`
	Type     string                 `json:"type"`
	Size     int64                  `json:"size"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Pipeline is the per-conversation store. It is request-local except
// when snapshot-loaded, per §5's resource model.
type Pipeline struct {
	mu sync.RWMutex

	pipelineID string

	// namespace surface: namespace -> key -> value
	data map[string]map[string]interface{}

	// 3-D surface: user -> topic -> agent -> key -> value
	data3D map[string]map[string]map[string]map[string]interface{}

	files map[string]File

	history    []HistoryEntry
	maxHistory int

	memories *memoryStore
}

// SnapshotKey builds the canonical (user_id, agent_name, session_id)
// identifier snapshots are stored and restored under, per spec.md
// §3/§6.
func SnapshotKey(userID, agentName, sessionID string) string {
	return userID + "|" + agentName + "|" + sessionID
}

// New constructs an empty pipeline identified by pipelineID (typically
// "(user_id, agent_name, session_id)" joined by the caller).
func New(pipelineID string) *Pipeline {
	return &Pipeline{
		pipelineID: pipelineID,
		data:       make(map[string]map[string]interface{}),
		data3D:     make(map[string]map[string]map[string]map[string]interface{}),
		files:      make(map[string]File),
		maxHistory: DefaultMaxHistory,
		memories:   newMemoryStore(),
	}
}

func (p *Pipeline) ID() string { return p.pipelineID }

// SetMaxHistory bounds the mutation log, clamped to
// [MinMaxHistory, MaxMaxHistory].
func (p *Pipeline) SetMaxHistory(n int) {
	if n < MinMaxHistory {
		n = MinMaxHistory
	}
	if n > MaxMaxHistory {
		n = MaxMaxHistory
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxHistory = n
	p.trimHistoryLocked()
}

// Put writes a value. If dims carries UserID (3-D targeting), the
// write lands on the 3-D surface; otherwise it lands on the namespace
// surface keyed by dims.Namespace.
func (p *Pipeline) Put(dims Dimensions, key string, value interface{}) {
	dims = DefaultDimensions(dims)
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := HistoryEntry{Timestamp: time.Now(), Action: "put", Key: key, NewValue: value}
	if dims.UserID != "" {
		byTopic, ok := p.data3D[dims.UserID]
		if !ok {
			byTopic = make(map[string]map[string]map[string]interface{})
			p.data3D[dims.UserID] = byTopic
		}
		byAgent, ok := byTopic[dims.TopicID]
		if !ok {
			byAgent = make(map[string]map[string]interface{})
			byTopic[dims.TopicID] = byAgent
		}
		kv, ok := byAgent[dims.AgentID]
		if !ok {
			kv = make(map[string]interface{})
			byAgent[dims.AgentID] = kv
		}
		entry.OldValue = kv[key]
		entry.UserID, entry.TopicID, entry.AgentID = dims.UserID, dims.TopicID, dims.AgentID
		kv[key] = value
	} else {
		kv, ok := p.data[dims.Namespace]
		if !ok {
			kv = make(map[string]interface{})
			p.data[dims.Namespace] = kv
		}
		entry.OldValue = kv[key]
		entry.Namespace = dims.Namespace
		kv[key] = value
	}
	p.appendHistoryLocked(entry)
}

// Get reads a value for dims/key, reporting whether it was present.
func (p *Pipeline) Get(dims Dimensions, key string) (interface{}, bool) {
	dims = DefaultDimensions(dims)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if dims.UserID != "" {
		kv := p.lookup3DLocked(dims)
		if kv == nil {
			return nil, false
		}
		v, ok := kv[key]
		return v, ok
	}
	kv, ok := p.data[dims.Namespace]
	if !ok {
		return nil, false
	}
	v, ok := kv[key]
	return v, ok
}

// Has reports presence without returning the value.
func (p *Pipeline) Has(dims Dimensions, key string) bool {
	_, ok := p.Get(dims, key)
	return ok
}

// Delete removes a key, recording a history entry if it existed.
func (p *Pipeline) Delete(dims Dimensions, key string) {
	dims = DefaultDimensions(dims)
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := HistoryEntry{Timestamp: time.Now(), Action: "delete", Key: key}
	if dims.UserID != "" {
		kv := p.lookup3DLocked(dims)
		if kv == nil {
			return
		}
		if old, ok := kv[key]; ok {
			entry.OldValue = old
			entry.UserID, entry.TopicID, entry.AgentID = dims.UserID, dims.TopicID, dims.AgentID
			delete(kv, key)
			p.appendHistoryLocked(entry)
		}
		return
	}
	kv, ok := p.data[dims.Namespace]
	if !ok {
		return
	}
	if old, ok := kv[key]; ok {
		entry.OldValue = old
		entry.Namespace = dims.Namespace
		delete(kv, key)
		p.appendHistoryLocked(entry)
	}
}

func (p *Pipeline) lookup3DLocked(dims Dimensions) map[string]interface{} {
	byTopic, ok := p.data3D[dims.UserID]
	if !ok {
		return nil
	}
	byAgent, ok := byTopic[dims.TopicID]
	if !ok {
		return nil
	}
	return byAgent[dims.AgentID]
}

func (p *Pipeline) appendHistoryLocked(e HistoryEntry) {
	p.history = append(p.history, e)
	p.trimHistoryLocked()
}

func (p *Pipeline) trimHistoryLocked() {
	if len(p.history) > p.maxHistory {
		p.history = p.history[len(p.history)-p.maxHistory:]
	}
}

// History returns a defensive copy of the mutation log.
func (p *Pipeline) History() []HistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]HistoryEntry, len(p.history))
	copy(out, p.history)
	return out
}

// PutFile records a tracked file attachment.
func (p *Pipeline) PutFile(key string, f File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[key] = f
}

// GetFile returns a tracked file attachment.
func (p *Pipeline) GetFile(key string) (File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.files[key]
	return f, ok
}
