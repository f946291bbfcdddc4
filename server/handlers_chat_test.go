package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/flow/ftypes"
)

func TestHandleChatReturnsAccumulatedFinalContent(t *testing.T) {
	a := &fakeAgent{
		chunks: []ftypes.Chunk{
			{Type: ftypes.Content, Content: "partial"},
			{Type: ftypes.Final, Content: "final answer"},
		},
		nodes: []agent.MessageNode{{NodeID: "n1", NodeType: "llm", Content: "final answer"}},
	}
	s := newTestServer(t, map[string]agent.Agent{"assistant": a})

	body, _ := json.Marshal(chatRequest{UserID: "u1", Message: "hi", AgentName: "assistant", SessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Message != "final answer" {
		t.Fatalf("resp = %+v, want final answer", resp)
	}
}

func TestHandleChatUnknownAgentReturnsRoutingError(t *testing.T) {
	s := newTestServer(t, map[string]agent.Agent{})
	body, _ := json.Marshal(chatRequest{UserID: "u1", Message: "hi", AgentName: "ghost"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown agent", rec.Code)
	}
}

func TestHandleChatInvalidBodyReturnsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid body", rec.Code)
	}
}

func TestHandleChatStreamEmitsSSEEvents(t *testing.T) {
	a := &fakeAgent{chunks: []ftypes.Chunk{
		{Type: ftypes.Content, Content: "hel"},
		{Type: ftypes.Content, Content: "lo"},
		{Type: ftypes.Final, Content: "hello"},
	}}
	s := newTestServer(t, map[string]agent.Agent{"assistant": a})

	body, _ := json.Marshal(chatRequest{UserID: "u1", Message: "hi", AgentName: "assistant", SessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	out := rec.Body.String()
	if strings.Count(out, "data: ") != 3 {
		t.Fatalf("output = %q, want 3 SSE events", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("output = %q, want final content present", out)
	}
}

func TestHandleCreateSessionPersistsAndReturnsSession(t *testing.T) {
	s := newTestServer(t, nil)
	body, _ := json.Marshal(createSessionRequest{UserID: "u1", SessionName: "greeting", AgentID: "assistant"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListSessionsReturnsCreatedSessions(t *testing.T) {
	s := newTestServer(t, nil)
	createBody, _ := json.Marshal(createSessionRequest{UserID: "u1", SessionName: "greeting"})
	createReq := httptest.NewRequest(http.MethodPost, "/api/chat/sessions", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	s.router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d", createRec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/chat/sessions/u1", nil)
	listRec := httptest.NewRecorder()
	s.router.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list sessions status = %d", listRec.Code)
	}
	var sessions []map[string]interface{}
	if err := json.Unmarshal(listRec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %v, want 1", sessions)
	}
}

func TestHandleMessagesReturnsPersistedTurn(t *testing.T) {
	a := &fakeAgent{
		chunks: []ftypes.Chunk{{Type: ftypes.Final, Content: "final answer"}},
		nodes:  []agent.MessageNode{{NodeID: "n1", NodeType: "llm", Content: "final answer"}},
	}
	s := newTestServer(t, map[string]agent.Agent{"assistant": a})

	chatBody, _ := json.Marshal(chatRequest{UserID: "u1", Message: "hi", AgentName: "assistant", SessionID: "s1"})
	chatReq := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(chatBody))
	chatRec := httptest.NewRecorder()
	s.router.ServeHTTP(chatRec, chatReq)
	if chatRec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body = %s", chatRec.Code, chatRec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/messages/s1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var messages []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) < 2 {
		t.Fatalf("messages = %v, want at least a user and an assistant message", messages)
	}
}

func TestHandleMessagesUnknownSessionReturnsEmptyList(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/messages/ghost", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var messages []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages = %v, want none for an unknown session", messages)
	}
}

func TestHandlePipelineStateMissingParamsReturnsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/pipeline_state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing query params", rec.Code)
	}
}

func TestHandlePipelineStateReturnsNilForMissingSnapshot(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/pipeline_state?user_id=u1&agent_name=assistant&session_id=s1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["pipeline_context"] != nil {
		t.Fatalf("pipeline_context = %v, want nil for a never-saved snapshot", body["pipeline_context"])
	}
}
