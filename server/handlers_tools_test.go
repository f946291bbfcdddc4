package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowctl/convoy/tool"
)

type stubTool struct{ name string }

func (t stubTool) GetInfo() tool.Info {
	return tool.Info{Name: t.name, Description: "a stub tool", Type: tool.Type("test")}
}
func (t stubTool) Execute(ctx context.Context, params map[string]interface{}) (tool.Result, error) {
	return tool.Result{Success: true, ToolName: t.name}, nil
}
func (t stubTool) GetName() string        { return t.name }
func (t stubTool) GetDescription() string { return "a stub tool" }

func newTestServerWithTools(t *testing.T) *Server {
	t.Helper()
	reg := tool.NewRegistry(0, 0, nil, nil)
	if err := reg.Register(context.Background(), stubTool{name: "search"}, tool.Type("test"), "builtin"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s := newTestServer(t, nil)
	s.toolReg = reg
	return s
}

func TestHandleToolListReturnsRegisteredTools(t *testing.T) {
	s := newTestServerWithTools(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tools/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []tool.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "search" {
		t.Fatalf("infos = %+v, want one tool named search", infos)
	}
}

func TestHandleToolResetScoreUnknownToolReturnsRoutingError(t *testing.T) {
	s := newTestServerWithTools(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tools/ghost/reset_score", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown tool", rec.Code)
	}
}

func TestHandleToolResetScoreSucceeds(t *testing.T) {
	s := newTestServerWithTools(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tools/search/reset_score", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
