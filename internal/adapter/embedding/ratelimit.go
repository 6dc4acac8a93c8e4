package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"ragchat/internal/port"
)

// RateLimited wraps an Embedder so that backend calls do not exceed the
// configured rate. Each EmbedMany counts as one call.
type RateLimited struct {
	port.Embedder
	limiter *rate.Limiter
}

// NewRateLimited returns the embedder unchanged when rps is not positive.
func NewRateLimited(inner port.Embedder, rps float64) port.Embedder {
	if rps <= 0 {
		return inner
	}
	burst := max(1, int(rps))
	return &RateLimited{Embedder: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.Embedder.Embed(ctx, text)
}

func (r *RateLimited) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.Embedder.EmbedMany(ctx, texts)
}
