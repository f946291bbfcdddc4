package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/flow/ftypes"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers send an Origin header from whatever host serves the
	// chat UI; this runtime has no fixed deployment origin to pin to.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket implements the optional bidirectional /ws/{session_id}
// channel, per spec.md §6: each inbound text frame carries the same
// chat request body as POST /api/chat/stream, and outbound frames
// carry the same ftypes.Chunk shape as the SSE stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		a, err := s.agentFor(req.AgentName)
		if err != nil {
			conn.WriteJSON(ftypes.Chunk{ChunkID: newChunkID(), Type: ftypes.Error, SessionID: req.SessionID, Content: err.Error(), IsEnd: true})
			continue
		}

		s.persistUserMessage(r.Context(), req)

		var nodes []agent.MessageNode
		stream, err := a.Stream(r.Context(), req.UserID, req.Message, req.SessionID, func(n agent.MessageNode) {
			nodes = append(nodes, n)
		})
		if err != nil {
			conn.WriteJSON(ftypes.Chunk{ChunkID: newChunkID(), Type: ftypes.Error, SessionID: req.SessionID, Content: err.Error(), IsEnd: true})
			continue
		}

		var content string
		for chunk := range stream {
			if chunk.ChunkID == "" {
				chunk.ChunkID = newChunkID()
			}
			if err := conn.WriteJSON(chunk); err != nil {
				return
			}
			if chunk.Type == ftypes.Final {
				content = chunk.Content
			}
		}
		s.persistAssistantMessage(r.Context(), req, content, nodes)
		s.persistPipelineSnapshot(r.Context(), req.UserID, req.AgentName, req.SessionID)
	}
}
