package kb

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// pineconeStore implements VectorStore against Pinecone's hosted
// service, grounded on pkg/vector/pinecone.go.
type pineconeStore struct {
	client    *pinecone.Client
	indexName string
}

func newPineconeStore(cfg VectorStoreConfig) (*pineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kb: pinecone api key is required")
	}
	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.IndexHost != "" {
		params.Host = cfg.IndexHost
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("kb: failed to create pinecone client: %w", err)
	}
	indexName := cfg.Namespace
	if indexName == "" {
		indexName = "convoy-index"
	}
	return &pineconeStore{client: client, indexName: indexName}, nil
}

func (s *pineconeStore) Name() string { return "pinecone" }

func (s *pineconeStore) index(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	name := collection
	if name == "" {
		name = s.indexName
	}
	idx, err := s.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("kb: describe pinecone index %q: %w", name, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: idx.Host})
	if err != nil {
		return nil, fmt.Errorf("kb: pinecone index connection: %w", err)
	}
	return conn, nil
}

func (s *pineconeStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]interface{}) error {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		meta, err = structpb.NewStruct(metadata)
		if err != nil {
			return fmt.Errorf("kb: pinecone metadata conversion: %w", err)
		}
	}
	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: vector, Metadata: meta}})
	if err != nil {
		return fmt.Errorf("kb: pinecone upsert failed: %w", err)
	}
	return nil
}

func (s *pineconeStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorRecord, error) {
	return s.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (s *pineconeStore) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]VectorRecord, error) {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metaFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metaFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("kb: pinecone filter conversion: %w", err)
		}
	}
	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("kb: pinecone query failed: %w", err)
	}
	out := make([]VectorRecord, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		rec := VectorRecord{ID: m.Vector.Id, Score: m.Score, Metadata: map[string]interface{}{}}
		if m.Vector.Metadata != nil {
			for k, v := range m.Vector.Metadata.AsMap() {
				rec.Metadata[k] = v
				if k == "content" {
					if c, ok := v.(string); ok {
						rec.Content = c
					}
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *pineconeStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.DeleteVectorsById(ctx, []string{id})
}

func (s *pineconeStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()
	metaFilter, err := structpb.NewStruct(filter)
	if err != nil {
		return fmt.Errorf("kb: pinecone filter conversion: %w", err)
	}
	return conn.DeleteVectorsByFilter(ctx, metaFilter)
}

func (s *pineconeStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.client.DeleteIndex(ctx, collection)
}
