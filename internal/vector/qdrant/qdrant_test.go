package qdrant

import (
	"context"
	"testing"

	"github.com/efebarandurmaz/chromademo/internal/vector"
	pb "github.com/qdrant/go-client/qdrant"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestNewDialer_RequiresEmbedder(t *testing.T) {
	if _, err := NewDialer(vector.DialConfig{Host: "localhost"}); err == nil {
		t.Fatal("expected error without embedder")
	}
}

func TestNewDialer_DefaultPort(t *testing.T) {
	d, err := NewDialer(vector.DialConfig{Host: "qdrant", Embedder: fixedEmbedder{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Address() != "qdrant:6334" {
		t.Errorf("expected qdrant:6334, got %s", d.Address())
	}
}

func TestPointID(t *testing.T) {
	a := PointID("doc_1")
	if a != PointID("doc_1") {
		t.Error("point id should be deterministic")
	}
	if a == PointID("doc_2") {
		t.Error("different ids should map to different points")
	}

	const u = "0b8f7e0c-3c41-4e51-9d2e-5b1d7f3f1c2a"
	if PointID(u) != u {
		t.Errorf("uuid ids should map to themselves, got %s", PointID(u))
	}
}

func TestBuildFilter_Empty(t *testing.T) {
	f, err := BuildFilter(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != nil {
		t.Errorf("expected nil filter, got %v", f)
	}
}

func TestBuildFilter_MetadataAndDocument(t *testing.T) {
	f, err := BuildFilter(
		vector.Where{"source": "Superheroes", "year": 2008, "animated": false},
		&vector.WhereDocument{Contains: "Marvel"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.GetMust()) != 4 {
		t.Fatalf("expected 4 conditions, got %d", len(f.GetMust()))
	}

	// Metadata keys are sorted; the document predicate comes last.
	wantKeys := []string{"animated", "source", "year", payloadDocument}
	for i, cond := range f.GetMust() {
		field := cond.GetField()
		if field.GetKey() != wantKeys[i] {
			t.Errorf("condition %d: expected key %s, got %s", i, wantKeys[i], field.GetKey())
		}
	}
	if f.GetMust()[1].GetField().GetMatch().GetKeyword() != "Superheroes" {
		t.Error("expected keyword match on source")
	}
	if f.GetMust()[2].GetField().GetMatch().GetInteger() != 2008 {
		t.Error("expected integer match on year")
	}
	if f.GetMust()[3].GetField().GetMatch().GetText() != "Marvel" {
		t.Error("expected text match on document")
	}
}

func TestBuildFilter_UnsupportedValue(t *testing.T) {
	if _, err := BuildFilter(vector.Where{"score": 1.5}, nil); err == nil {
		t.Fatal("expected error for float match value")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payload, err := toPayload(vector.Record{
		ID:   "doc_7",
		Text: "Dolphins are known for their high intelligence.",
		Metadata: vector.Metadata{
			"source": "Animals",
			"rank":   3,
			"weight": 0.5,
			"wild":   true,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, doc, meta := fromPayload(payload)
	if id != "doc_7" {
		t.Errorf("expected id doc_7, got %s", id)
	}
	if doc != "Dolphins are known for their high intelligence." {
		t.Errorf("unexpected document %q", doc)
	}
	if meta["source"] != "Animals" || meta["rank"] != int64(3) || meta["weight"] != 0.5 || meta["wild"] != true {
		t.Errorf("unexpected metadata %v", meta)
	}
	if _, ok := meta[payloadID]; ok {
		t.Error("reserved keys should not leak into metadata")
	}
}

func TestToPayload_ReservedKey(t *testing.T) {
	_, err := toPayload(vector.Record{ID: "x", Metadata: vector.Metadata{"document": "oops"}})
	if err == nil {
		t.Fatal("expected error for reserved metadata key")
	}
}

func TestFromPayload_IgnoresUnknownKinds(t *testing.T) {
	_, _, meta := fromPayload(map[string]*pb.Value{
		"nested": {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{}}},
	})
	if len(meta) != 0 {
		t.Errorf("expected struct values to be skipped, got %v", meta)
	}
}
