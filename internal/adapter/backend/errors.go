// Package backend holds the error plumbing shared by the adapters that talk
// to model servers over HTTP.
package backend

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

// MaxPreview is the number of runes of a response body kept in errors.
const MaxPreview = 200

// Preview returns the start of body for an error message. It never cuts a
// multi-byte rune in half.
func Preview(body []byte) string {
	if utf8.RuneCount(body) <= MaxPreview {
		return string(body)
	}
	runes := []rune(string(body))
	return string(runes[:MaxPreview]) + "..."
}

// Transport wraps a failed round trip as ErrBackendUnavailable. Cancellation
// by the caller is passed through unchanged.
func Transport(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, name, err)
}

// OpenAIStatus extracts the HTTP status and message from a go-openai error.
// ok is false for failures that never got a response.
func OpenAIStatus(err error) (status int, message string, ok bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, reqErr.Error(), true
	}
	return 0, "", false
}
