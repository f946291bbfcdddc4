package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowctl/convoy/pkgerrors"
)

// handleMCPList returns the names of every configured MCP server, per
// spec.md §6's /api/mcp CRUD surface (read-only here: servers are
// provisioned through config, not this API).
func (s *Server) handleMCPList(w http.ResponseWriter, r *http.Request) {
	if s.mcpHelper == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.mcpHelper.GetAvailableServices())
}

func (s *Server) handleMCPTools(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "server_name")
	if s.mcpHelper == nil {
		writeError(w, pkgerrors.New(pkgerrors.KindRouting, "server", "mcp_tools", "no MCP servers configured", nil))
		return
	}
	tools, err := s.mcpHelper.GetTools(r.Context(), name)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.KindDependency, "server", "mcp_tools", "failed to list tools for "+name, err))
		return
	}
	writeJSON(w, http.StatusOK, tools)
}
