package kb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// qdrantStore implements VectorStore against a Qdrant server, grounded
// on pkg/databases/qdrant.go's point-struct and filter construction.
type qdrantStore struct {
	client *qdrant.Client
}

func newQdrantStore(cfg VectorStoreConfig) (*qdrantStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("kb: qdrant host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("kb: failed to create qdrant client for %s:%d: %w", cfg.Host, port, err)
	}
	return &qdrantStore{client: client}, nil
}

func (s *qdrantStore) Name() string { return "qdrant" }

func (s *qdrantStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]interface{}) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("kb: qdrant collection check failed: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(vector)),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("kb: failed to create qdrant collection: %w", err)
		}
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		payload[key] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("kb: qdrant upsert failed: %w", err)
	}
	return nil
}

func (s *qdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorRecord, error) {
	return s.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (s *qdrantStore) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]VectorRecord, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}
	result, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("kb: qdrant search failed: %w", err)
	}
	out := make([]VectorRecord, 0, len(result))
	for _, p := range result {
		rec := VectorRecord{Score: p.GetScore(), Metadata: map[string]interface{}{}}
		if p.Id != nil {
			if uuid := p.Id.GetUuid(); uuid != "" {
				rec.ID = uuid
			} else {
				rec.ID = fmt.Sprintf("%d", p.Id.GetNum())
			}
		}
		for k, v := range p.Payload {
			val := qdrantValue(v)
			rec.Metadata[k] = val
			if k == "content" {
				if s, ok := val.(string); ok {
					rec.Content = s
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *qdrantStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	return err
}

func (s *qdrantStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(buildQdrantFilter(filter)),
	})
	return err
}

func (s *qdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.client.DeleteCollection(ctx, collection)
}

func buildQdrantFilter(filter map[string]interface{}) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func qdrantValue(v *qdrant.Value) interface{} {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}
