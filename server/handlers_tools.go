package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowctl/convoy/pkgerrors"
)

// handleToolList returns every registered tool's Info (including its
// current score), across all tool Types, per spec.md §6's /api/tools
// surface.
func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.toolReg.List(""))
}

// handleToolResetScore resets a tool's availability score to the
// registry default, per §4.1's "score is global per (type, name)".
func (s *Server) handleToolResetScore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.toolReg.ResetScore(r.Context(), name); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindRouting, "server", "tool_reset_score", "unknown tool "+name, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
