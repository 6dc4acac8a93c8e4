// Package mcp serves the assistant's tools over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ragchat/internal/adapter/tool"
)

// Version is the MCP server version.
const Version = "0.1.0"

type Server struct {
	search   *tool.SearchDocuments
	add      tool.Add
	multiply tool.Multiply
	server   *mcp.Server
}

// NewServer exposes add, multiply and, when search is non-nil,
// search_documents.
func NewServer(search *tool.SearchDocuments) *Server {
	impl := &mcp.Implementation{
		Name:    "ragchat",
		Version: Version,
	}

	s := &Server{
		search: search,
		server: mcp.NewServer(impl, nil),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
