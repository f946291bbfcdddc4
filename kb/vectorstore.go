package kb

import (
	"context"
	"fmt"
)

// VectorRecord is one stored vector plus its content/metadata.
type VectorRecord struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]interface{}
}

// VectorStore is the pluggable vector-database surface kb retrieval
// runs against, grounded on pkg/databases.DatabaseProvider — Qdrant,
// chromem-go, and Pinecone each implement it, selected by
// config.DatabaseProviderConfig.Type.
type VectorStore interface {
	Name() string
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]interface{}) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorRecord, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]VectorRecord, error)
	Delete(ctx context.Context, collection, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error
	DeleteCollection(ctx context.Context, collection string) error
}

// NewVectorStore builds a VectorStore for the given provider type
// ("qdrant", "chromem", "pinecone"), per the DOMAIN STACK's
// DatabaseProviderConfig.Type switch.
func NewVectorStore(providerType string, cfg VectorStoreConfig) (VectorStore, error) {
	switch providerType {
	case "qdrant":
		return newQdrantStore(cfg)
	case "pinecone":
		return newPineconeStore(cfg)
	case "chromem", "":
		return newChromemStore(cfg)
	default:
		return nil, fmt.Errorf("kb: unsupported vector store provider %q", providerType)
	}
}

// VectorStoreConfig is the union of fields the three providers need;
// unused fields are ignored per provider.
type VectorStoreConfig struct {
	Host        string
	Port        int
	APIKey      string
	UseTLS      bool
	PersistPath string
	IndexHost   string
	Namespace   string
}
