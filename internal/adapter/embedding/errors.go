package embedding

import (
	"context"
	"fmt"
	"net/http"

	"ragchat/internal/adapter/backend"
	"ragchat/internal/domain"
)

// statusError maps a non-200 backend response onto the domain taxonomy.
// Server-side failures and throttling mean the backend is unavailable;
// any other rejection means the input itself was refused.
func statusError(name string, status int, body []byte) error {
	preview := backend.Preview(body)
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrBackendUnavailable, name, status, preview)
	}
	return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrEmbedding, name, status, preview)
}

func openAIError(ctx context.Context, err error) error {
	if status, msg, ok := backend.OpenAIStatus(err); ok {
		return statusError("openai", status, []byte(msg))
	}
	return backend.Transport(ctx, "openai", err)
}

func checkVectors(name string, want int, vectors [][]float32) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: %s returned %d vectors for %d inputs", domain.ErrEmbedding, name, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: %s returned an empty vector for input %d", domain.ErrEmbedding, name, i)
		}
	}
	return nil
}
