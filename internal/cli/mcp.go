package cli

import (
	"github.com/spf13/cobra"

	"ragchat/internal/adapter/mcp"
	"ragchat/internal/adapter/tool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document search and arithmetic tools over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing
search_documents, add and multiply. Logs go to stderr.

Example client configuration:
  {"command": "ragchat", "args": ["mcp", "--dir", "/path/to/project"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		svc, err := openServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		search := tool.NewSearchDocuments(svc.retriever, cfg.Retrieve.TopK)
		Logger("mcp").Info("serving MCP over stdio", "entries", svc.index.Count())
		return mcp.NewServer(search).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
