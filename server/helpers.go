package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/pkgerrors"
	"github.com/flowctl/convoy/storage"
)

// nowFunc is a seam for tests; production always uses wall-clock time.
var nowFunc = time.Now

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a pkgerrors.Error (or any error) to its HTTP status
// via pkgerrors.HTTPStatus, per spec.md §7's error taxonomy.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, pkgerrors.HTTPStatus(err), map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

// uuidSessionFallback derives a stable-for-this-request session id
// when the caller omits one, per spec.md §6's "session_id?" optional
// field — a fresh session starts, rather than erroring, on first
// contact from a user.
func uuidSessionFallback(userID string) string {
	return newChunkID()
}

// persistUserMessage writes the inbound turn to durable storage before
// the agent runs, so a crash mid-stream still leaves the user's
// message recorded.
func (s *Server) persistUserMessage(ctx context.Context, req chatRequest) {
	if s.store == nil {
		return
	}
	_ = s.store.SaveMessage(ctx, storage.Message{
		MessageID: newChunkID(),
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Type:      "user",
		Content:   req.Message,
		CreatedAt: nowFunc(),
	})
}

// persistAssistantMessage writes the final accumulated response plus
// one record per contributing MessageNode, per spec.md §3's
// MessageNode entity ("one row per flow node that produced output").
func (s *Server) persistAssistantMessage(ctx context.Context, req chatRequest, content string, nodes []agent.MessageNode) {
	if s.store == nil {
		return
	}
	_ = s.store.SaveMessage(ctx, storage.Message{
		MessageID: newChunkID(),
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Type:      "assistant",
		Content:   content,
		AgentName: req.AgentName,
		CreatedAt: nowFunc(),
	})
	for _, n := range nodes {
		_ = s.store.SaveMessage(ctx, storage.Message{
			MessageID: newChunkID(),
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Type:      "tool",
			Content:   n.Content,
			AgentName: req.AgentName,
			Metadata: map[string]interface{}{
				"node_id":   n.NodeID,
				"node_type": n.NodeType,
				"node_name": n.NodeName,
			},
			CreatedAt: nowFunc(),
		})
	}
}

// persistPipelineSnapshot saves the in-process pipeline state at the
// end of the turn, per DESIGN.md's Open Question decision that
// snapshots persist once per turn rather than per mutation.
func (s *Server) persistPipelineSnapshot(ctx context.Context, userID, agentName, sessionID string) {
	if s.store == nil {
		return
	}
	pipe, ok := s.pipelines[agentName]
	if !ok {
		return
	}
	key := pipelineSnapshotKey(userID, agentName, sessionID)
	_ = s.store.SavePipelineSnapshot(ctx, key, pipe.Export())
}
