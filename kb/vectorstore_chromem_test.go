package kb

import (
	"context"
	"testing"
)

func TestChromemStoreUpsertAndSearchRoundTrips(t *testing.T) {
	store, err := NewVectorStore("chromem", VectorStoreConfig{})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Upsert(ctx, "docs", "c1", []float32{1, 0, 0}, map[string]interface{}{"content": "alpha"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, "docs", "c2", []float32{0, 1, 0}, map[string]interface{}{"content": "beta"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := store.Search(ctx, "docs", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("Search() = %+v, want c1 as the closest match", results)
	}
	if results[0].Content != "alpha" {
		t.Fatalf("results[0].Content = %q, want alpha", results[0].Content)
	}
}

func TestChromemStoreSearchEmptyCollectionReturnsNil(t *testing.T) {
	store, err := NewVectorStore("chromem", VectorStoreConfig{})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	results, err := store.Search(context.Background(), "empty", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search() on empty collection = %v, want empty", results)
	}
}

func TestChromemStoreDeleteRemovesDocument(t *testing.T) {
	store, err := NewVectorStore("chromem", VectorStoreConfig{})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Upsert(ctx, "docs", "c1", []float32{1, 0}, map[string]interface{}{"content": "alpha"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Delete(ctx, "docs", "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := store.Search(ctx, "docs", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search() after delete = %+v, want empty", results)
	}
}

func TestChromemStoreDeleteCollectionDropsDocuments(t *testing.T) {
	store, err := NewVectorStore("chromem", VectorStoreConfig{})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Upsert(ctx, "docs", "c1", []float32{1}, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.DeleteCollection(ctx, "docs"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	results, err := store.Search(ctx, "docs", []float32{1}, 5)
	if err != nil {
		t.Fatalf("Search after DeleteCollection: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search() after DeleteCollection = %+v, want empty", results)
	}
}

func TestNewVectorStoreRejectsUnsupportedType(t *testing.T) {
	if _, err := NewVectorStore("dynamodb", VectorStoreConfig{}); err == nil {
		t.Fatal("NewVectorStore() = nil error, want error for unsupported type")
	}
}

func TestNewVectorStoreDefaultsToChromem(t *testing.T) {
	store, err := NewVectorStore("", VectorStoreConfig{})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	if store.Name() != "chromem" {
		t.Fatalf("Name() = %q, want chromem as the zero-value default", store.Name())
	}
}
