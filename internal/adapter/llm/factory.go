package llm

import (
	"fmt"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

// New builds the chat backend named by provider.
func New(provider string, cfg Config) (port.ToolCallingLLM, error) {
	switch provider {
	case "", "ollama":
		return NewOllamaLLM(cfg), nil
	case "openai":
		return NewOpenAILLM(cfg)
	default:
		return nil, &domain.ConfigError{Key: "llm.provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
}

// Collect drains a stream into one string, calling onFragment for each piece.
func Collect(stream port.TokenStream, onFragment func(string)) (string, error) {
	defer stream.Close()

	var out []byte
	for stream.Next() {
		f := stream.Fragment()
		if onFragment != nil {
			onFragment(f)
		}
		out = append(out, f...)
	}
	return string(out), stream.Err()
}
