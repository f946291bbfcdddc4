package mcpclient

import (
	"context"
	"sort"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowctl/convoy/config"
)

func TestAddServerAndGetAvailableServices(t *testing.T) {
	h := NewHelper()
	h.AddServer("search", config.MCPServerConfig{Transport: "stdio", Command: "search-mcp"})
	h.AddServer("docs", config.MCPServerConfig{Transport: "sse", URL: "http://localhost:1234"})

	names := h.GetAvailableServices()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "docs" || names[1] != "search" {
		t.Fatalf("GetAvailableServices() = %v, want [docs search]", names)
	}
}

func TestGetToolsUnknownServerReturnsError(t *testing.T) {
	h := NewHelper()
	if _, err := h.GetTools(context.Background(), "ghost"); err == nil {
		t.Fatal("expected an error for an unregistered server")
	}
}

func TestCallToolUnknownServerReturnsError(t *testing.T) {
	h := NewHelper()
	if _, err := h.CallTool(context.Background(), "ghost", "search", nil); err == nil {
		t.Fatal("expected an error for an unregistered server")
	}
}

func TestConnectRejectsUnsupportedTransport(t *testing.T) {
	h := NewHelper()
	h.AddServer("weird", config.MCPServerConfig{Transport: "carrier-pigeon"})
	s, err := h.lookup("weird")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := s.connect(context.Background()); err == nil {
		t.Fatal("expected an error for an unsupported transport")
	}
}

func TestSchemaToMapCarriesFields(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		Required:   []string{"query"},
	}
	out := schemaToMap(schema)
	if out["type"] != "object" {
		t.Fatalf("type = %v, want object", out["type"])
	}
	required, ok := out["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Fatalf("required = %v, want [query]", out["required"])
	}
}

func TestEnvToSliceFormatsKeyValuePairs(t *testing.T) {
	out := envToSlice(map[string]string{"FOO": "bar"})
	if len(out) != 1 || out[0] != "FOO=bar" {
		t.Fatalf("envToSlice = %v, want [FOO=bar]", out)
	}
}

func TestEnvToSliceEmptyMapReturnsEmptySlice(t *testing.T) {
	out := envToSlice(nil)
	if len(out) != 0 {
		t.Fatalf("envToSlice(nil) = %v, want empty", out)
	}
}
