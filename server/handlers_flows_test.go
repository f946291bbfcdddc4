package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowctl/convoy/config"
)

func TestHandleFlowListReturnsConfiguredFlowNames(t *testing.T) {
	s := newTestServer(t, nil)
	s.appCfg.Flows = map[string]config.FlowConfig{
		"greeting": {Nodes: []config.NodeCfg{{ID: "start", Implementation: "start"}}},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/flows/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "greeting" {
		t.Fatalf("names = %v, want [greeting]", names)
	}
}

func TestHandleFlowGetUnknownFlowReturnsRoutingError(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/flows/ghost", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown flow", rec.Code)
	}
}

func TestHandleFlowGetReturnsConfig(t *testing.T) {
	s := newTestServer(t, nil)
	s.appCfg.Flows = map[string]config.FlowConfig{
		"greeting": {Nodes: []config.NodeCfg{{ID: "start", Implementation: "start"}}},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/flows/greeting", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var cfg config.FlowConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.Nodes) != 1 || cfg.Nodes[0].ID != "start" {
		t.Fatalf("cfg = %+v, want one start node", cfg)
	}
}
