package agent

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flowctl/convoy/llm"
	"github.com/flowctl/convoy/pkgerrors"
	"github.com/flowctl/convoy/storage"
	"github.com/flowctl/convoy/tool"
)

const testMessagesSchema = `
CREATE TABLE messages (
    message_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    content TEXT NOT NULL,
    agent_name TEXT,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);
`

// newTestStore opens a storage.Store backed by a shared-cache
// in-memory sqlite database unique to the calling test, pre-seeded
// with just the messages table this package's tests need.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	keepAlive, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { keepAlive.Close() })
	if _, err := keepAlive.Exec(testMessagesSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	st, err := storage.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBuildConversationHistoryWindowsAndAppendsCurrent(t *testing.T) {
	ctx := &AgentContext{Messages: []Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}}
	got := buildConversationHistory(ctx, 2, "current")
	want := []llm.Message{{Role: "assistant", Content: "two"}, {Role: "user", Content: "three"}, {Role: "user", Content: "current"}}
	if len(got) != len(want) {
		t.Fatalf("buildConversationHistory() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("buildConversationHistory()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildConversationHistoryUnderWindowKeepsAll(t *testing.T) {
	ctx := &AgentContext{Messages: []Message{{Role: "user", Content: "only"}}}
	got := buildConversationHistory(ctx, 10, "next")
	if len(got) != 2 {
		t.Fatalf("buildConversationHistory() = %+v, want the single prior message plus the current one", got)
	}
}

func TestContextStoreReusesMatchingSession(t *testing.T) {
	store := newContextStore()
	first := store.get(context.Background(), nil, "u1", "s1")
	first.Messages = append(first.Messages, Message{Role: "user", Content: "hi"})
	second := store.get(context.Background(), nil, "u1", "s1")
	if len(second.Messages) != 1 {
		t.Fatal("context store did not reuse the existing context for the same session")
	}
}

func TestContextStoreResetsOnNewSession(t *testing.T) {
	store := newContextStore()
	first := store.get(context.Background(), nil, "u1", "s1")
	first.Messages = append(first.Messages, Message{Role: "user", Content: "hi"})
	second := store.get(context.Background(), nil, "u1", "s2")
	if len(second.Messages) != 0 {
		t.Fatal("context store should start fresh for a new session under the same user")
	}
}

func TestContextStoreRehydratesFromPersistedMessagesWhenNoInProcessContext(t *testing.T) {
	db := newTestStore(t)
	sessionID := "s-rehydrate"
	now := time.Now()
	if err := db.SaveMessage(context.Background(), storage.Message{MessageID: "m1", SessionID: sessionID, UserID: "u1", Type: "user", Content: "hello", CreatedAt: now}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := db.SaveMessage(context.Background(), storage.Message{MessageID: "m2", SessionID: sessionID, UserID: "u1", Type: "assistant", Content: "hi there", AgentName: "assistant", CreatedAt: now}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	store := newContextStore()
	rt := &Runtime{Store: db}
	got := store.get(context.Background(), rt, "u1", sessionID)
	if len(got.Messages) != 2 {
		t.Fatalf("Messages = %+v, want 2 rehydrated from storage", got.Messages)
	}
	if got.Messages[0].Role != "user" || got.Messages[0].Content != "hello" {
		t.Fatalf("Messages[0] = %+v, want the persisted user message", got.Messages[0])
	}
	if got.Messages[1].Role != "assistant" || got.Messages[1].Content != "hi there" {
		t.Fatalf("Messages[1] = %+v, want the persisted assistant message", got.Messages[1])
	}
}

func TestExecuteToolRejectsMissingRequiredParam(t *testing.T) {
	ft := &fakeAgentTool{name: "calculator", required: []string{"expression"}}
	reg := newTestRegistry(ft)
	_, err := executeTool(context.Background(), reg, "calculator", map[string]interface{}{})
	if err == nil {
		t.Fatal("executeTool() = nil error, want a missing-required-parameter error")
	}
	if pkgerrors.HTTPStatus(err) != 500 {
		t.Fatalf("HTTPStatus(err) = %d, want 500 for an execution-class error", pkgerrors.HTTPStatus(err))
	}
}

func TestExecuteToolUnknownNameIsRoutingError(t *testing.T) {
	reg := newTestRegistry()
	_, err := executeTool(context.Background(), reg, "does_not_exist", nil)
	if err == nil {
		t.Fatal("executeTool() = nil error, want tool-not-found error")
	}
	if pkgerrors.HTTPStatus(err) != 404 {
		t.Fatalf("HTTPStatus(err) = %d, want 404 for a routing-class error", pkgerrors.HTTPStatus(err))
	}
}

func TestExecuteToolSucceedsWithRequiredParamsPresent(t *testing.T) {
	ft := &fakeAgentTool{name: "calculator", required: []string{"expression"}, result: tool.Result{Success: true, Content: "4"}}
	reg := newTestRegistry(ft)
	result, err := executeTool(context.Background(), reg, "calculator", map[string]interface{}{"expression": "2+2"})
	if err != nil {
		t.Fatalf("executeTool: %v", err)
	}
	if result.Content != "4" {
		t.Fatalf("result.Content = %q, want 4", result.Content)
	}
}

func TestDefaultToolCallPrefersSearchTool(t *testing.T) {
	name, params, ok := defaultToolCall([]string{"calculator", "web_search"}, "weather today")
	if !ok || name != "web_search" {
		t.Fatalf("defaultToolCall() = %q, %v, want web_search preferred for its name", name, ok)
	}
	if params["query"] != "weather today" {
		t.Fatalf("params = %v, want query set to the message", params)
	}
}

func TestDefaultToolCallFallsBackToFirstWhenNoSearchTool(t *testing.T) {
	name, _, ok := defaultToolCall([]string{"calculator", "translator"}, "q")
	if !ok || name != "calculator" {
		t.Fatalf("defaultToolCall() = %q, %v, want the first bound tool", name, ok)
	}
}

func TestDefaultToolCallNoBoundToolsReturnsFalse(t *testing.T) {
	_, _, ok := defaultToolCall(nil, "q")
	if ok {
		t.Fatal("defaultToolCall() = true with no bound tools, want false")
	}
}
