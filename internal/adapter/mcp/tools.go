package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/adapter/tool"
	"ragchat/internal/domain"
)

// SearchOutput is the structured result of search_documents.
type SearchOutput struct {
	Passages []domain.Passage `json:"passages"`
	Count    int              `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        s.add.Name(),
		Description: s.add.Description(),
	}, s.handleAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        s.multiply.Name(),
		Description: s.multiply.Description(),
	}, s.handleMultiply)

	if s.search != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        s.search.Name(),
			Description: s.search.Description(),
		}, s.handleSearch)
	}
}

func (s *Server) handleAdd(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input tool.AddArgs,
) (*mcp.CallToolResult, tool.ArithmeticResult, error) {
	return nil, tool.ArithmeticResult{Result: s.add.Apply(input)}, nil
}

func (s *Server) handleMultiply(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input tool.MultiplyArgs,
) (*mcp.CallToolResult, tool.ArithmeticResult, error) {
	return nil, tool.ArithmeticResult{Result: s.multiply.Apply(input)}, nil
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input tool.SearchArgs,
) (*mcp.CallToolResult, SearchOutput, error) {
	passages, err := s.search.Search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	// Clients that ignore structured content still get readable text.
	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: retriever.FormatPassages(passages)}},
	}
	return result, SearchOutput{Passages: passages, Count: len(passages)}, nil
}
