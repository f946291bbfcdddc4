package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowctl/convoy/pkgerrors"
)

// handleFlowList and handleFlowGet expose the flow graphs configured
// for flow_driven agents, per spec.md §6's read-only /api/flows
// surface (flows are authored via config, not this API).
func (s *Server) handleFlowList(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.appCfg.Flows))
	for name := range s.appCfg.Flows {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleFlowGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "flow_name")
	cfg, ok := s.appCfg.Flows[name]
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.KindRouting, "server", "flow_get", "unknown flow "+name, nil))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
