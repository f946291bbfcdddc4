package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/pkgerrors"
	"github.com/flowctl/convoy/storage"
)

type chatRequest struct {
	UserID    string                 `json:"user_id"`
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id"`
	AgentName string                 `json:"agent_name"`
	Context   map[string]interface{} `json:"context"`
	Stream    bool                   `json:"stream"`
}

type chatResponse struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	AgentName       string                 `json:"agent_name"`
	ToolsUsed       []string               `json:"tools_used"`
	Timestamp       time.Time              `json:"timestamp"`
	PipelineContext map[string]interface{} `json:"pipeline_context,omitempty"`
}

// handleChat implements the non-streaming POST /api/chat per spec.md
// §6: it drains the agent's stream internally and returns the
// accumulated final message plus tool usage.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindConfig, "server", "handle_chat", "invalid request body", err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuidSessionFallback(req.UserID)
	}

	a, err := s.agentFor(req.AgentName)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindRouting, "server", "handle_chat", err.Error(), err))
		return
	}

	s.persistUserMessage(r.Context(), req)

	var nodes []agent.MessageNode
	stream, err := a.Stream(r.Context(), req.UserID, req.Message, req.SessionID, func(n agent.MessageNode) {
		nodes = append(nodes, n)
	})
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindExecution, "server", "handle_chat", "agent stream failed", err))
		return
	}

	var content string
	var toolsUsed []string
	for chunk := range stream {
		switch chunk.Type {
		case ftypes.Final:
			content = chunk.Content
		case ftypes.Done:
			if tu, ok := chunk.Metadata["tools_used"].([]string); ok {
				toolsUsed = tu
			}
		}
	}

	s.persistAssistantMessage(r.Context(), req, content, nodes)
	s.persistPipelineSnapshot(r.Context(), req.UserID, req.AgentName, req.SessionID)

	writeJSON(w, http.StatusOK, chatResponse{
		Success:   true,
		Message:   content,
		AgentName: req.AgentName,
		ToolsUsed: toolsUsed,
		Timestamp: nowFunc(),
	})
}

// handleChatStream implements POST /api/chat/stream: text/event-stream,
// one `data: {json}\n\n` event per ftypes.Chunk, per spec.md §6.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindConfig, "server", "handle_chat_stream", "invalid request body", err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuidSessionFallback(req.UserID)
	}

	a, err := s.agentFor(req.AgentName)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindRouting, "server", "handle_chat_stream", err.Error(), err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.KindExecution, "server", "handle_chat_stream", "streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.persistUserMessage(r.Context(), req)

	var nodes []agent.MessageNode
	stream, err := a.Stream(r.Context(), req.UserID, req.Message, req.SessionID, func(n agent.MessageNode) {
		nodes = append(nodes, n)
	})
	if err != nil {
		writeSSE(w, flusher, ftypes.Chunk{ChunkID: newChunkID(), Type: ftypes.Error, SessionID: req.SessionID, Content: err.Error(), IsEnd: true})
		return
	}

	var content string
	for chunk := range stream {
		if chunk.ChunkID == "" {
			chunk.ChunkID = newChunkID()
		}
		writeSSE(w, flusher, chunk)
		if chunk.Type == ftypes.Final {
			content = chunk.Content
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}

	s.persistAssistantMessage(r.Context(), req, content, nodes)
	s.persistPipelineSnapshot(r.Context(), req.UserID, req.AgentName, req.SessionID)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, c ftypes.Chunk) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

func (s *Server) handlePipelineState(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	agentName := r.URL.Query().Get("agent_name")
	sessionID := r.URL.Query().Get("session_id")
	if userID == "" || agentName == "" || sessionID == "" {
		writeError(w, pkgerrors.New(pkgerrors.KindConfig, "server", "pipeline_state", "user_id, agent_name, session_id are all required", nil))
		return
	}
	key := pipelineSnapshotKey(userID, agentName, sessionID)
	snap, found, err := s.store.LoadPipelineSnapshot(r.Context(), key)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindDependency, "server", "pipeline_state", "failed to load snapshot", err))
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "pipeline_context": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "pipeline_context": snap})
}

type createSessionRequest struct {
	UserID      string `json:"user_id"`
	SessionName string `json:"session_name"`
	AgentID     string `json:"agent_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindConfig, "server", "create_session", "invalid request body", err))
		return
	}
	sess := storage.Session{
		SessionID:   newChunkID(),
		UserID:      req.UserID,
		AgentID:     req.AgentID,
		SessionName: req.SessionName,
		IsActive:    true,
		CreatedAt:   nowFunc(),
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindDependency, "server", "create_session", "failed to persist session", err))
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	sessions, err := s.store.ListSessions(r.Context(), userID)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindDependency, "server", "list_sessions", "failed to list sessions", err))
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	messages, err := s.store.MessagesBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindDependency, "server", "messages", "failed to list messages", err))
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

