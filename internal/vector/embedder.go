package vector

import (
	"context"
	"fmt"
)

// Embedder turns texts into embedding vectors on the client side.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EnsureEmbeddings fills in the embedding of every record that has none.
func EnsureEmbeddings(ctx context.Context, e Embedder, records []Record) error {
	var (
		texts []string
		index []int
	)
	for i, r := range records {
		if len(r.Embedding) == 0 {
			texts = append(texts, r.Text)
			index = append(index, i)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if e == nil {
		return fmt.Errorf("%d records have no embedding and no embedder is configured", len(texts))
	}

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for j, i := range index {
		records[i].Embedding = vectors[j]
	}
	return nil
}

// EmbedQuery returns the query embeddings, computing them when q has none.
func EmbedQuery(ctx context.Context, e Embedder, q Query) ([][]float32, error) {
	if len(q.Embeddings) > 0 {
		if len(q.Embeddings) != len(q.Texts) && len(q.Texts) > 0 {
			return nil, fmt.Errorf("query embedding count mismatch: got %d, want %d", len(q.Embeddings), len(q.Texts))
		}
		return q.Embeddings, nil
	}
	if e == nil {
		return nil, nil
	}
	vectors, err := e.Embed(ctx, q.Texts)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != len(q.Texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(q.Texts))
	}
	return vectors, nil
}
