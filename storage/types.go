// Package storage persists sessions, messages, pipeline snapshots,
// tool scores, and knowledge-graph triples behind one Store, selected
// by config.StorageConfig.Driver (sqlite via github.com/mattn/go-sqlite3,
// postgres via github.com/lib/pq). Hand-written SQL, no ORM, matching
// the teacher's database access style.
//
// Store assumes its tables already exist; schema migration is out of
// scope (spec.md §1). The DDL it expects:
//
//	CREATE TABLE sessions (
//	    session_id TEXT PRIMARY KEY,
//	    user_id TEXT NOT NULL,
//	    agent_id TEXT,
//	    session_name TEXT,
//	    is_active BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at TIMESTAMP NOT NULL
//	);
//	CREATE TABLE messages (
//	    message_id TEXT PRIMARY KEY,
//	    session_id TEXT NOT NULL,
//	    user_id TEXT NOT NULL,
//	    type TEXT NOT NULL,
//	    content TEXT NOT NULL,
//	    agent_name TEXT,
//	    metadata TEXT,
//	    created_at TIMESTAMP NOT NULL
//	);
//	CREATE TABLE pipeline_snapshots (
//	    snapshot_key TEXT PRIMARY KEY,
//	    data TEXT NOT NULL,
//	    updated_at TIMESTAMP NOT NULL
//	);
//	CREATE TABLE tool_scores (
//	    tool_type TEXT NOT NULL,
//	    name TEXT NOT NULL,
//	    score REAL NOT NULL,
//	    available BOOLEAN NOT NULL,
//	    PRIMARY KEY (tool_type, name)
//	);
//	CREATE TABLE memories (
//	    id INTEGER PRIMARY KEY AUTOINCREMENT, -- SERIAL on postgres
//	    user_id TEXT NOT NULL,
//	    agent_name TEXT NOT NULL,
//	    kind TEXT NOT NULL,
//	    content TEXT NOT NULL,
//	    created_at TIMESTAMP NOT NULL
//	);
//	CREATE TABLE knowledge_triples (
//	    kb_id TEXT NOT NULL,
//	    subject TEXT NOT NULL,
//	    predicate TEXT NOT NULL,
//	    object TEXT NOT NULL,
//	    confidence REAL NOT NULL,
//	    source_text TEXT,
//	    chunk_id TEXT,
//	    document_id TEXT,
//	    created_at TIMESTAMP NOT NULL,
//	    PRIMARY KEY (kb_id, subject, predicate, object)
//	);
package storage

import "time"

// Session mirrors spec.md §3's Session entity.
type Session struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	SessionName string    `json:"session_name,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message mirrors spec.md §3's Message entity: immutable once stored.
type Message struct {
	MessageID string                 `json:"message_id"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"` // user | assistant | system | tool
	Content   string                 `json:"content"`
	AgentName string                 `json:"agent_name,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
