// Package retriever turns a query into ranked passages from the vector
// index.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

const (
	DefaultTopK        = 4
	DefaultMinScore    = 0.3
	DefaultFetchFactor = 3
)

type Options struct {
	// MinScore drops hits scoring below it. Zero keeps everything.
	MinScore float64
	// MMRLambda enables diversity reranking when greater than zero.
	MMRLambda      float64
	MMRFetchFactor int
}

type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
	opts     Options
	mmr      *MMRReranker
	logger   *log.Logger
}

func NewSemanticRetriever(
	index port.VectorIndex,
	embedder port.Embedder,
	opts Options,
	l *log.Logger,
) *SemanticRetriever {
	if l == nil {
		l = logger.Discard()
	}
	if opts.MMRFetchFactor < 1 {
		opts.MMRFetchFactor = DefaultFetchFactor
	}
	r := &SemanticRetriever{
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   l,
	}
	if opts.MMRLambda > 0 {
		r.mmr = NewMMRReranker(opts.MMRLambda, 0.95)
	}
	return r
}

// Retrieve returns up to k passages scoring at least the relevance floor.
// An empty index or a query with no relevant hits yields an empty slice.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidArgument, k)
	}
	if strings.TrimSpace(query) == "" {
		return []domain.Passage{}, nil
	}
	if r.index.Count() == 0 {
		return []domain.Passage{}, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := k
	if r.mmr != nil {
		fetch = k * r.opts.MMRFetchFactor
	}

	hits, err := r.index.SimilaritySearch(ctx, vector, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	passages := make([]domain.Passage, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.opts.MinScore {
			continue
		}
		passages = append(passages, domain.PassageFromEntry(hit))
	}

	if r.mmr != nil {
		passages = r.mmr.Rerank(passages, k)
	} else if len(passages) > k {
		passages = passages[:k]
	}

	r.logger.Debug("retrieved", "query", query, "hits", len(hits), "kept", len(passages))
	return passages, nil
}
