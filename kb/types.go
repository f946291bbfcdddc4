// Package kb implements the hybrid knowledge-base retrieval engine
// (C7): chunking, embedding, vector+keyword recall, reranking, and
// graph-boosted scoring, grounded on v2/rag's SearchEngine layering.
package kb

import (
	"context"
	"time"
)

// Document is one ingestible unit of content, chunked and embedded on
// ingestion.
type Document struct {
	ID         string
	KBID       string
	Title      string
	Content    string
	SourcePath string
	Metadata   map[string]interface{}
}

// Chunk is one retrievable slice of a Document, carrying its own
// embedding and optional domain/summary stamps, per spec.md §4.7.
type Chunk struct {
	ID         string
	KBID       string
	DocumentID string
	Index      int
	Total      int
	Content    string
	Embedding  []float32
	IsSummary  bool
	Domain     string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

// Source describes one chunk's contribution to an answer, carrying
// the scoring detail §4.7's returned object requires.
type Source struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Content      string  `json:"content"`
	Similarity   float32 `json:"similarity"`
	RerankScore  float32 `json:"rerank_score,omitempty"`
	Origin       string  `json:"origin"` // vector | keyword | hybrid
	GraphBoosted bool    `json:"graph_boosted,omitempty"`
}

// QueryResult is the object query() returns, per §4.7's
// "{query, response, sources, metadata}".
type QueryResult struct {
	Query           string                 `json:"query"`
	Response        string                 `json:"response"`
	Sources         []Source               `json:"sources"`
	Metadata        map[string]interface{} `json:"metadata"`
	DecomposedTerms []string               `json:"decomposed_terms,omitempty"`
}

// Embedder generates vector embeddings for chunk/query text, kept
// narrow so kb doesn't depend on a concrete provider SDK.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Completer is the minimal LLM surface kb needs for domain
// classification, query decomposition, HyDE, and reranking — narrower
// than llm.Provider so kb stays decoupled from the request/response
// wire shape.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GraphBooster looks up chunks referenced by graph triples matching
// query entities, per §4.7 step 5 / §4.8's kg package.
type GraphBooster interface {
	ChunksForEntities(ctx context.Context, kbID string, entities []string) (map[string]bool, error)
}
