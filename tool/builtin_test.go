package tool

import (
	"context"
	"testing"
)

func TestCalculatorTool(t *testing.T) {
	calc := NewCalculatorTool()

	tests := []struct {
		name    string
		expr    string
		wantOK  bool
		wantOut float64
	}{
		{name: "addition", expr: "2 + 2", wantOK: true, wantOut: 4},
		{name: "subtraction", expr: "10 - 3", wantOK: true, wantOut: 7},
		{name: "multiplication", expr: "3 * 4", wantOK: true, wantOut: 12},
		{name: "division", expr: "9 / 3", wantOK: true, wantOut: 3},
		{name: "division by zero", expr: "1 / 0", wantOK: false},
		{name: "unsupported operator", expr: "2 ^ 2", wantOK: false},
		{name: "unparseable", expr: "banana", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Execute(context.Background(), map[string]interface{}{"expression": tt.expr})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success != tt.wantOK {
				t.Fatalf("Success = %v, want %v (error=%q)", res.Success, tt.wantOK, res.Error)
			}
			if tt.wantOK && res.Output != tt.wantOut {
				t.Fatalf("Output = %v, want %v", res.Output, tt.wantOut)
			}
		})
	}
}

func TestWorkspaceReadWriteRoundTrip(t *testing.T) {
	ws := NewWorkspace(t.TempDir())

	if err := ws.Write("notes/a.txt", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ws.Read("notes/a.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read() = %q, want %q", got, "hello")
	}
}

func TestWorkspaceCleansEscapingPaths(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	// "../../etc/passwd" cleans to a path confined under Root rather
	// than escaping it, so this must fail as not-found, never as a
	// successful read of the real /etc/passwd.
	if _, err := ws.Read("../../etc/passwd"); err == nil {
		t.Fatal("Read escaped the workspace root")
	}
}

func TestBuiltinsReturnsAllTools(t *testing.T) {
	tools := Builtins(NewWorkspace(t.TempDir()))
	if len(tools) != 3 {
		t.Fatalf("Builtins() returned %d tools, want 3", len(tools))
	}
	for _, tl := range tools {
		if tl.GetName() == "" {
			t.Error("tool with empty name in Builtins()")
		}
	}
}

func TestReadFileToolRequiresPath(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	tl := newReadFileTool(ws)
	res, err := tl.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("Execute with no path succeeded, want failure")
	}
}

func TestReadFileToolReadsWorkspaceFile(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	if err := ws.Write("doc.txt", []byte("contents")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tl := newReadFileTool(ws)
	res, err := tl.Execute(context.Background(), map[string]interface{}{"path": "doc.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Content != "contents" {
		t.Fatalf("Execute() = %+v, want success with contents", res)
	}
}

func TestLooksLikeSearchTool(t *testing.T) {
	tests := []struct {
		name, desc string
		want       bool
	}{
		{name: "web_search", desc: "search the web", want: true},
		{name: "lookup_contact", desc: "find a contact", want: true},
		{name: "calculator", desc: "does arithmetic", want: false},
	}
	for _, tt := range tests {
		if got := LooksLikeSearchTool(tt.name, tt.desc); got != tt.want {
			t.Errorf("LooksLikeSearchTool(%q, %q) = %v, want %v", tt.name, tt.desc, got, tt.want)
		}
	}
}
