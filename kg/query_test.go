package kg

import (
	"context"
	"testing"
)

type fakeStore struct {
	triples      []Triple
	participants []Triple
	insertErr    error
}

func (f *fakeStore) InsertTriples(ctx context.Context, triples []Triple) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.triples = append(f.triples, triples...)
	return len(triples), nil
}

func (f *fakeStore) QueryEntity(ctx context.Context, kbID, entity string, limit int) ([]Triple, error) {
	var out []Triple
	for _, t := range f.triples {
		if t.Subject == entity || t.Object == entity {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) QueryEventParticipants(ctx context.Context, kbID, eventName string, limit int) ([]Triple, error) {
	return f.participants, nil
}

func (f *fakeStore) AllTriplesTouching(ctx context.Context, kbID string, entities []string, limit int) ([]Triple, error) {
	want := make(map[string]bool, len(entities))
	for _, e := range entities {
		want[e] = true
	}
	var out []Triple
	for _, t := range f.triples {
		if want[t.Subject] || want[t.Object] {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestAskRoutesEventQueriesToParticipantLookup(t *testing.T) {
	store := &fakeStore{participants: []Triple{{Subject: "刘备", Predicate: "参与", Object: "桃园结义"}}}
	q := NewQueryEngine(store)

	results, err := q.Ask(context.Background(), "kb1", "桃园结义的是谁", 2, 10)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(results) != 1 || results[0].Subject != "刘备" {
		t.Fatalf("Ask() = %+v, want the event participant triple", results)
	}
}

func TestAskFallsBackToMultiHopForNonEventQueries(t *testing.T) {
	store := &fakeStore{triples: []Triple{{Subject: "诸葛亮", Predicate: "属于", Object: "蜀汉"}}}
	q := NewQueryEngine(store)

	results, err := q.Ask(context.Background(), "kb1", "诸葛亮属于哪里", 2, 10)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Ask() returned no results, want the multi-hop fallback to find the 诸葛亮 triple")
	}
}

func TestExtractEntitiesFromQueryQuotedSpan(t *testing.T) {
	got := extractEntitiesFromQuery(`what is "golang"?`)
	if len(got) != 1 || got[0] != "golang" {
		t.Fatalf("extractEntitiesFromQuery() = %v, want [golang]", got)
	}
}

func TestExtractEntitiesFromQueryBookTitle(t *testing.T) {
	got := extractEntitiesFromQuery("《三国演义》讲了什么故事")
	found := false
	for _, e := range got {
		if e == "三国演义" {
			found = true
		}
	}
	if !found {
		t.Fatalf("extractEntitiesFromQuery() = %v, want 三国演义 extracted from book title brackets", got)
	}
}

func TestExtractEntitiesFromQueryChineseFallback(t *testing.T) {
	got := extractEntitiesFromQuery("诸葛亮和刘备是什么关系")
	if len(got) == 0 {
		t.Fatal("extractEntitiesFromQuery() found nothing, want the Chinese-token fallback to fire")
	}
}

func TestMultiHopQueryNoEntitiesReturnsNil(t *testing.T) {
	store := &fakeStore{}
	q := NewQueryEngine(store)
	results, err := q.MultiHopQuery(context.Background(), "kb1", "the is a", 2)
	if err != nil {
		t.Fatalf("MultiHopQuery: %v", err)
	}
	if results != nil {
		t.Fatalf("MultiHopQuery() = %v, want nil when no entities are extracted", results)
	}
}

func TestMultiHopQueryExpandsAcrossHops(t *testing.T) {
	store := &fakeStore{triples: []Triple{
		{Subject: "诸葛亮", Predicate: "属于", Object: "蜀汉"},
		{Subject: "蜀汉", Predicate: "位于", Object: "成都"},
	}}
	q := NewQueryEngine(store)
	results, err := q.MultiHopQuery(context.Background(), "kb1", "诸葛亮的故事", 2)
	if err != nil {
		t.Fatalf("MultiHopQuery: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("MultiHopQuery() = %+v, want triples from both hops", results)
	}
	if results[0].Hop > results[len(results)-1].Hop {
		t.Fatalf("results not sorted by hop ascending: %+v", results)
	}
}

func TestShortestPathsFindsDirectConnection(t *testing.T) {
	store := &fakeStore{triples: []Triple{
		{Subject: "A", Predicate: "rel", Object: "B"},
	}}
	q := NewQueryEngine(store)
	paths, err := q.ShortestPaths(context.Background(), "kb1", "A", "B", 3)
	if err != nil {
		t.Fatalf("ShortestPaths: %v", err)
	}
	if len(paths) != 1 || len(paths[0]) != 1 {
		t.Fatalf("ShortestPaths() = %+v, want one direct 1-hop path", paths)
	}
}

func TestShortestPathsNoConnectionReturnsEmpty(t *testing.T) {
	store := &fakeStore{triples: []Triple{{Subject: "A", Predicate: "rel", Object: "B"}}}
	q := NewQueryEngine(store)
	paths, err := q.ShortestPaths(context.Background(), "kb1", "A", "Z", 3)
	if err != nil {
		t.Fatalf("ShortestPaths: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("ShortestPaths() = %+v, want none between disconnected entities", paths)
	}
}
