package port

import (
	"context"

	"ragchat/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input text, in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension, or 0 if the backend
	// has not reported it yet.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex stores (vector, text, metadata) entries and searches them by
// cosine similarity.
type VectorIndex interface {
	// Upsert stores one entry per chunk and returns the assigned ids in
	// input order. Either every entry is stored or none is.
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) ([]string, error)

	// SimilaritySearch returns up to k entries ordered by descending score.
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.ScoredEntry, error)

	// Persist flushes the index to durable storage.
	Persist() error

	Count() int
	Dimension() int
	Close() error
}
