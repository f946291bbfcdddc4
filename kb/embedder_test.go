package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewEmbedderRejectsUnsupportedType(t *testing.T) {
	if _, err := NewEmbedder("bedrock", "", "", "model", 0); err == nil {
		t.Fatal("NewEmbedder() = nil error, want error for unsupported type")
	}
}

func TestNewEmbedderDefaultsToOllama(t *testing.T) {
	e, err := NewEmbedder("", "", "http://localhost:11434", "nomic-embed-text", 768)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.Dimensions() != 768 {
		t.Fatalf("Dimensions() = %d, want 768", e.Dimensions())
	}
}

func TestOllamaEmbedderEmbedParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("request path = %q, want /api/embeddings", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e, err := NewEmbedder("ollama", "", srv.URL, "nomic-embed-text", 3)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("Embed() = %v, want [0.1 0.2 0.3]", vec)
	}
}

func TestOllamaEmbedderEmbedBatchCallsEmbedPerText(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{1, 2}})
	}))
	defer srv.Close()

	e, err := NewEmbedder("ollama", "", srv.URL, "m", 2)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out) != 3 || calls != 3 {
		t.Fatalf("EmbedBatch() = %d vectors from %d calls, want 3 and 3", len(out), calls)
	}
}

func TestOllamaEmbedderEmbedNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewEmbedder("ollama", "", srv.URL, "m", 2)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("Embed() = nil error, want error for non-200 status")
	}
}
