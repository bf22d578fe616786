package chroma

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/efebarandurmaz/chromademo/internal/vector"
)

// EmbeddingFunction adapts a vector.Embedder to chroma-go, so collections
// embed with the configured provider instead of the bundled ONNX model.
func EmbeddingFunction(e vector.Embedder) embeddings.EmbeddingFunction {
	return &embeddingFunction{embedder: e}
}

type embeddingFunction struct {
	embedder vector.Embedder
}

func (f *embeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := f.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f *embeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	out, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
