package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/domain"
	"ragchat/internal/port"
)

type SearchArgs struct {
	Query string `json:"query" jsonschema:"what to look for in the indexed documents"`
	K     int    `json:"k,omitempty" jsonschema:"maximum number of passages to return"`
}

// SearchDocuments exposes the retriever as a tool.
type SearchDocuments struct {
	retriever port.Retriever
	defaultK  int
}

func NewSearchDocuments(r port.Retriever, defaultK int) *SearchDocuments {
	if defaultK < 1 {
		defaultK = retriever.DefaultTopK
	}
	return &SearchDocuments{retriever: r, defaultK: defaultK}
}

func (s *SearchDocuments) Name() string { return "search_documents" }

func (s *SearchDocuments) Description() string {
	return "Search the indexed documents and return the most relevant passages with their sources."
}

func (s *SearchDocuments) InputSchema() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": map[string]any{"type": "string", "description": "what to look for in the indexed documents"},
		"k":     map[string]any{"type": "integer", "description": "maximum number of passages to return", "minimum": 1},
	})
}

func (s *SearchDocuments) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in SearchArgs
	if err := decodeArgs(s.Name(), args, &in); err != nil {
		return "", err
	}
	passages, err := s.Search(ctx, in)
	if err != nil {
		return "", err
	}
	return retriever.FormatPassages(passages), nil
}

// Search runs the retrieval behind the tool. A zero K uses the default.
func (s *SearchDocuments) Search(ctx context.Context, in SearchArgs) ([]domain.Passage, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}
	k := in.K
	if k == 0 {
		k = s.defaultK
	}
	return s.retriever.Retrieve(ctx, in.Query, k)
}
