package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/flowctl/convoy/kg"
	"github.com/flowctl/convoy/pipeline"
)

// Store is the SQL-backed persistence layer (C3's durable half, plus
// C1's tool scores and C8's triples), implementing tool.ScoreStore,
// pipeline.DurableMemoryStore, and kg.Store so none of those packages
// need to import storage directly.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects using driver ("sqlite" | "postgres") and dsn, matching
// config.StorageConfig's two supported backends.
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case "sqlite", "":
		sqlDriver = "sqlite3"
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: pinging %s: %w", driver, err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites "?" placeholders into "$1", "$2", ... for postgres;
// sqlite and its driver accept "?" natively. Hand-written SQL below is
// always written with "?" and passed through rebind before execution,
// the idiomatic way to keep one query string working across both
// drivers without an ORM or query builder.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.exec(ctx,
		`INSERT INTO sessions (session_id, user_id, agent_id, session_name, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.UserID, sess.AgentID, sess.SessionName, sess.IsActive, sess.CreatedAt)
	return err
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.query(ctx,
		`SELECT session_id, user_id, agent_id, session_name, is_active, created_at FROM sessions WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var agentID, name sql.NullString
		if err := rows.Scan(&sess.SessionID, &sess.UserID, &agentID, &name, &sess.IsActive, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sess.AgentID = agentID.String
		sess.SessionName = name.String
		out = append(out, sess)
	}
	return out, rows.Err()
}

// --- Messages ---

func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshaling message metadata: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO messages (message_id, session_id, user_id, type, content, agent_name, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.SessionID, m.UserID, m.Type, m.Content, m.AgentName, string(meta), m.CreatedAt)
	return err
}

func (s *Store) MessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.query(ctx,
		`SELECT message_id, session_id, user_id, type, content, agent_name, metadata, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var agentName sql.NullString
		var meta sql.NullString
		if err := rows.Scan(&m.MessageID, &m.SessionID, &m.UserID, &m.Type, &m.Content, &agentName, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.AgentName = agentName.String
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Pipeline snapshots (storage.Store's half of C3's durability) ---

func (s *Store) SavePipelineSnapshot(ctx context.Context, key string, snap pipeline.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: marshaling pipeline snapshot: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO pipeline_snapshots (snapshot_key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (snapshot_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(data), time.Now())
	return err
}

func (s *Store) LoadPipelineSnapshot(ctx context.Context, key string) (pipeline.Snapshot, bool, error) {
	var data string
	err := s.queryRow(ctx, `SELECT data FROM pipeline_snapshots WHERE snapshot_key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return pipeline.Snapshot{}, false, nil
	}
	if err != nil {
		return pipeline.Snapshot{}, false, err
	}
	var snap pipeline.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return pipeline.Snapshot{}, false, fmt.Errorf("storage: unmarshaling pipeline snapshot: %w", err)
	}
	return snap, true, nil
}

// --- Tool scores (tool.ScoreStore) ---

func (s *Store) LoadToolScore(ctx context.Context, toolType, name string) (float64, bool, error) {
	var score float64
	err := s.queryRow(ctx, `SELECT score FROM tool_scores WHERE tool_type = ? AND name = ?`, toolType, name).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *Store) SaveToolScore(ctx context.Context, toolType, name string, score float64, available bool) error {
	_, err := s.exec(ctx,
		`INSERT INTO tool_scores (tool_type, name, score, available) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tool_type, name) DO UPDATE SET score = excluded.score, available = excluded.available`,
		toolType, name, score, available)
	return err
}

// EnsureToolScoreColumn defensively adds the tool_scores.available
// column when missing, a SUPPLEMENTED FEATURE mirroring
// tool_manager.py's _auto_migrate_score_columns: older deployments may
// predate the column, and retrying the ALTER TABLE is cheaper than a
// real migration tool for a single nullable column.
func (s *Store) EnsureToolScoreColumn(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `ALTER TABLE tool_scores ADD COLUMN available BOOLEAN NOT NULL DEFAULT TRUE`)
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
		return nil
	}
	return err
}

// --- Memories (pipeline.DurableMemoryStore) ---

func (s *Store) SaveMemory(ctx context.Context, m pipeline.Memory) error {
	_, err := s.exec(ctx,
		`INSERT INTO memories (user_id, agent_name, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.AgentName, string(m.Kind), m.Content, m.CreatedAt)
	return err
}

func (s *Store) SearchMemories(ctx context.Context, userID, query string, limit int) ([]pipeline.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx,
		`SELECT user_id, agent_name, kind, content, created_at FROM memories WHERE user_id = ? AND content LIKE ? ORDER BY created_at DESC LIMIT ?`,
		userID, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.Memory
	for rows.Next() {
		var m pipeline.Memory
		var kind string
		if err := rows.Scan(&m.UserID, &m.AgentName, &kind, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = pipeline.MemoryKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Knowledge graph triples (kg.Store) ---

func (s *Store) InsertTriples(ctx context.Context, triples []kg.Triple) (int, error) {
	inserted := 0
	for _, t := range triples {
		res, err := s.exec(ctx,
			`INSERT INTO knowledge_triples (kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (kb_id, subject, predicate, object) DO NOTHING`,
			t.KBID, t.Subject, t.Predicate, t.Object, t.Confidence, t.SourceText, t.ChunkID, t.DocumentID, t.CreatedAt)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (s *Store) QueryEntity(ctx context.Context, kbID, entity string, limit int) ([]kg.Triple, error) {
	exact, err := s.scanTriples(ctx,
		`SELECT kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at
		 FROM knowledge_triples WHERE kb_id = ? AND (subject = ? OR object = ?) LIMIT ?`,
		kbID, entity, entity, limit)
	if err != nil {
		return nil, err
	}
	if len(exact) >= limit {
		return exact, nil
	}

	fuzzy, err := s.scanTriples(ctx,
		`SELECT kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at
		 FROM knowledge_triples WHERE kb_id = ? AND (subject LIKE ? OR object LIKE ?) AND subject != ? AND object != ? LIMIT ?`,
		kbID, "%"+entity+"%", "%"+entity+"%", entity, entity, limit-len(exact))
	if err != nil {
		return exact, err
	}
	return append(exact, fuzzy...), nil
}

func (s *Store) QueryEventParticipants(ctx context.Context, kbID, eventName string, limit int) ([]kg.Triple, error) {
	exact, err := s.scanTriples(ctx,
		`SELECT kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at
		 FROM knowledge_triples WHERE kb_id = ? AND object = ? AND predicate = '参与' LIMIT ?`,
		kbID, eventName, limit)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return s.scanTriples(ctx,
		`SELECT kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at
		 FROM knowledge_triples WHERE kb_id = ? AND object LIKE ? AND predicate = '参与' LIMIT ?`,
		kbID, "%"+eventName+"%", limit)
}

func (s *Store) AllTriplesTouching(ctx context.Context, kbID string, entities []string, limit int) ([]kg.Triple, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	var clauses []string
	args := []interface{}{kbID}
	for _, e := range entities {
		clauses = append(clauses, "subject LIKE ? OR object LIKE ?")
		args = append(args, "%"+e+"%", "%"+e+"%")
	}
	args = append(args, limit)
	q := fmt.Sprintf(
		`SELECT kb_id, subject, predicate, object, confidence, source_text, chunk_id, document_id, created_at
		 FROM knowledge_triples WHERE kb_id = ? AND (%s) LIMIT ?`,
		strings.Join(clauses, " OR "))
	return s.scanTriples(ctx, q, args...)
}

func (s *Store) scanTriples(ctx context.Context, query string, args ...interface{}) ([]kg.Triple, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kg.Triple
	for rows.Next() {
		var t kg.Triple
		var sourceText, chunkID, documentID sql.NullString
		if err := rows.Scan(&t.KBID, &t.Subject, &t.Predicate, &t.Object, &t.Confidence, &sourceText, &chunkID, &documentID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.SourceText = sourceText.String
		t.ChunkID = chunkID.String
		t.DocumentID = documentID.String
		out = append(out, t)
	}
	return out, rows.Err()
}
