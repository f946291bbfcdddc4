package kb

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestNewQdrantStoreRequiresHost(t *testing.T) {
	if _, err := newQdrantStore(VectorStoreConfig{}); err == nil {
		t.Fatal("expected an error when Host is empty")
	}
}

func TestBuildQdrantFilterBuildsOneConditionPerKey(t *testing.T) {
	filter := buildQdrantFilter(map[string]interface{}{"document_id": "doc1"})
	if len(filter.Must) != 1 {
		t.Fatalf("len(Must) = %d, want 1", len(filter.Must))
	}
	field := filter.Must[0].GetField()
	if field == nil || field.Key != "document_id" {
		t.Fatalf("field = %+v, want key document_id", field)
	}
	if field.Match.GetKeyword() != "doc1" {
		t.Fatalf("matched keyword = %q, want doc1", field.Match.GetKeyword())
	}
}

func TestBuildQdrantFilterEmptyMapReturnsEmptyFilter(t *testing.T) {
	filter := buildQdrantFilter(nil)
	if len(filter.Must) != 0 {
		t.Fatalf("len(Must) = %d, want 0 for an empty filter map", len(filter.Must))
	}
}

func TestQdrantValueExtractsEachKind(t *testing.T) {
	cases := []struct {
		name string
		v    *qdrant.Value
		want interface{}
	}{
		{"string", &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: "hi"}}, "hi"},
		{"int", &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: 7}}, int64(7)},
		{"double", &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: 1.5}}, 1.5},
		{"bool", &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := qdrantValue(tc.v); got != tc.want {
				t.Fatalf("qdrantValue() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQdrantValueUnknownKindReturnsNil(t *testing.T) {
	if got := qdrantValue(&qdrant.Value{}); got != nil {
		t.Fatalf("qdrantValue(empty) = %v, want nil", got)
	}
}
