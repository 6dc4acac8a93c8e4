package usecase

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	retriever port.Retriever
	topK      int
	logger    *log.Logger
}

// NewRetrieveUseCase creates a new retrieve use case. topK is used when a
// caller passes k == 0.
func NewRetrieveUseCase(r port.Retriever, topK int, l *log.Logger) *RetrieveUseCase {
	if topK < 1 {
		topK = retriever.DefaultTopK
	}
	if l == nil {
		l = logger.Discard()
	}
	return &RetrieveUseCase{retriever: r, topK: topK, logger: l}
}

// Retrieve returns the passages relevant to query. It never writes to the
// index, so an abandoned call leaves nothing behind.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k == 0 {
		k = u.topK
	}

	start := time.Now()
	passages, err := u.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	u.logger.Debug("retrieve", "k", k, "results", len(passages), "took", time.Since(start).Round(time.Millisecond))
	return passages, nil
}

// TopK is the default number of passages per query.
func (u *RetrieveUseCase) TopK() int { return u.topK }

// PassageResult is a simplified result for CLI output.
type PassageResult struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func ToResults(passages []domain.Passage) []PassageResult {
	out := make([]PassageResult, len(passages))
	for i, p := range passages {
		out[i] = PassageResult{Source: p.Source, ChunkIndex: p.ChunkIndex, Score: p.Score, Text: p.Text}
	}
	return out
}
