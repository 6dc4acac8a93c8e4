// Package llm adapts chat model backends to port.LLM.
package llm

import (
	"context"
	"fmt"

	"ragchat/internal/adapter/backend"
	"ragchat/internal/domain"
)

// Any failure to get a reply from the model means the assistant cannot
// answer right now, so every error kind maps to ErrBackendUnavailable.
func statusError(name string, status int, body []byte) error {
	return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrBackendUnavailable, name, status, backend.Preview(body))
}

func openAIError(ctx context.Context, err error) error {
	if status, msg, ok := backend.OpenAIStatus(err); ok {
		return statusError("openai", status, []byte(msg))
	}
	return backend.Transport(ctx, "openai", err)
}
