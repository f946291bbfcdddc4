package kb

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/philippgille/chromem-go"
)

// chromemStore implements VectorStore using the embedded, zero-infra
// chromem-go database — the default when no external vector service
// is configured, grounded on pkg/vector/chromem.go.
type chromemStore struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

func newChromemStore(cfg VectorStoreConfig) (*chromemStore, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("kb: failed to create chromem persist dir: %w", err)
		}
		loaded, err := chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			db = chromem.NewDB()
		} else {
			db = loaded
		}
	} else {
		db = chromem.NewDB()
	}
	return &chromemStore{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *chromemStore) Name() string { return "chromem" }

func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("kb: chromem store requires pre-computed embeddings")
}

func (s *chromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if c, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("kb: chromem collection %q: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

func (s *chromemStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]interface{}) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	strMeta := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		if k == "content" {
			if c, ok := v.(string); ok {
				content = c
			}
		}
		strMeta[k] = fmt.Sprint(v)
	}
	return col.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: strMeta, Embedding: vector})
}

func (s *chromemStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorRecord, error) {
	return s.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (s *chromemStore) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]VectorRecord, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	n := topK
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	whereMeta := make(map[string]string, len(filter))
	for k, v := range filter {
		whereMeta[k] = fmt.Sprint(v)
	}
	results, err := col.QueryEmbedding(ctx, vector, n, nil, whereMeta)
	if err != nil {
		return nil, fmt.Errorf("kb: chromem search failed: %w", err)
	}
	out := make([]VectorRecord, 0, len(results))
	for _, r := range results {
		meta := make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out = append(out, VectorRecord{ID: r.ID, Score: r.Similarity, Content: r.Content, Metadata: meta})
	}
	return out, nil
}

func (s *chromemStore) Delete(ctx context.Context, collection, id string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, id)
}

func (s *chromemStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	whereMeta := make(map[string]string, len(filter))
	for k, v := range filter {
		whereMeta[k] = fmt.Sprint(v)
	}
	return col.Delete(ctx, nil, whereMeta)
}

func (s *chromemStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return s.db.DeleteCollection(collection)
}
