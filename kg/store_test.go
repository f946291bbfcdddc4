package kg

import (
	"context"
	"testing"
)

func TestMemStoreInsertTriplesDeduplicatesByKey(t *testing.T) {
	s := NewMemStore()
	triples := []Triple{
		{KBID: "kb1", Subject: "刘备", Predicate: "结义", Object: "关羽"},
		{KBID: "kb1", Subject: "刘备", Predicate: "结义", Object: "关羽"},
	}
	inserted, err := s.InsertTriples(context.Background(), triples)
	if err != nil {
		t.Fatalf("InsertTriples: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("InsertTriples() = %d, want 1 after deduping identical triple", inserted)
	}

	inserted, err = s.InsertTriples(context.Background(), triples[:1])
	if err != nil {
		t.Fatalf("InsertTriples: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("InsertTriples() re-insert = %d, want 0", inserted)
	}
}

func TestMemStoreQueryEntityExactBeforeFuzzy(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "关羽", Predicate: "是", Object: "武将"},
		{KBID: "kb1", Subject: "关羽张飞", Predicate: "结义", Object: "刘备"},
	})
	got, err := s.QueryEntity(context.Background(), "kb1", "关羽", 10)
	if err != nil {
		t.Fatalf("QueryEntity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryEntity() = %d triples, want 2 (exact + fuzzy)", len(got))
	}
	if got[0].Subject != "关羽" {
		t.Fatalf("got[0] = %+v, want the exact match first", got[0])
	}
}

func TestMemStoreQueryEntityRespectsLimit(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "关羽", Predicate: "是", Object: "武将"},
		{KBID: "kb1", Subject: "关羽", Predicate: "位于", Object: "荆州"},
	})
	got, err := s.QueryEntity(context.Background(), "kb1", "关羽", 1)
	if err != nil {
		t.Fatalf("QueryEntity: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("QueryEntity(limit=1) = %d, want 1", len(got))
	}
}

func TestMemStoreQueryEventParticipantsExactThenFuzzyFallback(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "刘备", Predicate: "参与", Object: "桃园结义"},
	})
	got, err := s.QueryEventParticipants(context.Background(), "kb1", "桃园结义", 10)
	if err != nil {
		t.Fatalf("QueryEventParticipants: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "刘备" {
		t.Fatalf("QueryEventParticipants() = %+v, want exact match on 刘备", got)
	}

	got, err = s.QueryEventParticipants(context.Background(), "kb1", "桃园", 10)
	if err != nil {
		t.Fatalf("QueryEventParticipants: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "刘备" {
		t.Fatalf("QueryEventParticipants() fuzzy fallback = %+v, want 刘备 via substring match", got)
	}
}

func TestMemStoreQueryEventParticipantsIgnoresNonMatchingPredicate(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "刘备", Predicate: "是", Object: "桃园结义"},
	})
	got, err := s.QueryEventParticipants(context.Background(), "kb1", "桃园结义", 10)
	if err != nil {
		t.Fatalf("QueryEventParticipants: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("QueryEventParticipants() = %+v, want empty for non-参与 predicate", got)
	}
}

func TestMemStoreAllTriplesTouchingEmptyEntitiesReturnsNil(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{{KBID: "kb1", Subject: "a", Predicate: "p", Object: "b"}})
	got, err := s.AllTriplesTouching(context.Background(), "kb1", nil, 10)
	if err != nil {
		t.Fatalf("AllTriplesTouching: %v", err)
	}
	if got != nil {
		t.Fatalf("AllTriplesTouching(nil entities) = %v, want nil", got)
	}
}

func TestMemStoreAllTriplesTouchingMatchesAnyEntity(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "刘备", Predicate: "结义", Object: "关羽"},
		{KBID: "kb1", Subject: "张飞", Predicate: "结义", Object: "刘备"},
		{KBID: "kb1", Subject: "曹操", Predicate: "敌对", Object: "孙权"},
	})
	got, err := s.AllTriplesTouching(context.Background(), "kb1", []string{"刘备"}, 10)
	if err != nil {
		t.Fatalf("AllTriplesTouching: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AllTriplesTouching() = %d triples, want 2 touching 刘备", len(got))
	}
}

func TestMemStoreScopesQueriesByKBID(t *testing.T) {
	s := NewMemStore()
	s.InsertTriples(context.Background(), []Triple{
		{KBID: "kb1", Subject: "关羽", Predicate: "是", Object: "武将"},
		{KBID: "kb2", Subject: "关羽", Predicate: "是", Object: "神祇"},
	})
	got, err := s.QueryEntity(context.Background(), "kb1", "关羽", 10)
	if err != nil {
		t.Fatalf("QueryEntity: %v", err)
	}
	if len(got) != 1 || got[0].Object != "武将" {
		t.Fatalf("QueryEntity() = %+v, want only kb1's triple", got)
	}
}
