package port

import (
	"context"

	"ragchat/internal/domain"
)

// Retriever maps a query to ranked passages. An empty result means no
// relevant context and is not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error)
}
