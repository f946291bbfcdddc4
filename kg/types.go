// Package kg implements the Knowledge Graph engine (C8): rule/NER
// triple extraction, dynamic per-document LLM-learned rules, and
// multi-hop graph query — grounded on original_source's
// knowledge_graph_service.py since the teacher has no graph-extraction
// analogue.
package kg

import (
	"context"
	"time"
)

// ExtractionMode selects how triples are extracted from a chunk of
// text, per spec.md §4.8.
type ExtractionMode string

const (
	ModeLLM     ExtractionMode = "llm"
	ModeRule    ExtractionMode = "rule"
	ModeHybrid  ExtractionMode = "hybrid"
	ModeModel   ExtractionMode = "model"
	ModeNERRule ExtractionMode = "ner_rule"
)

// Triple is one (subject, predicate, object) fact, scoped to a
// knowledge base and traceable to its source chunk.
type Triple struct {
	KBID       string
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
	SourceText string
	ChunkID    string
	DocumentID string
	CreatedAt  time.Time
}

// Key is the dedup identity §4.8's storage step uses:
// (kb_id, subject, predicate, object).
func (t Triple) Key() string {
	return t.KBID + "|" + t.Subject + "|" + t.Predicate + "|" + t.Object
}

// ScoredTriple adds hop distance, used by multi-hop query results.
type ScoredTriple struct {
	Triple
	Hop int
}

// Entity is a recognized named entity, as an external IE model would
// return for the ner_rule path.
type Entity struct {
	Text  string
	Label string // PERSON | ORG | LOC | EVENT | ...
}

// EntityRecognizer is the external IE model surface the ner_rule
// extraction path depends on, per §4.8: "entities are obtained from
// an external IE model service."
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// Completer is the narrow LLM surface kg needs for llm-mode
// extraction and dynamic rule learning.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Store persists triples and answers entity/event/multi-hop queries,
// implemented by storage.Store for durability and usable in-memory
// for tests.
type Store interface {
	InsertTriples(ctx context.Context, triples []Triple) (inserted int, err error)
	QueryEntity(ctx context.Context, kbID, entity string, limit int) ([]Triple, error)
	QueryEventParticipants(ctx context.Context, kbID, eventName string, limit int) ([]Triple, error)
	AllTriplesTouching(ctx context.Context, kbID string, entities []string, limit int) ([]Triple, error)
}
