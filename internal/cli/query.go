package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/usecase"
)

var (
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Show the passages retrieved for a query",
	Long: `Embed the query and print the most similar passages with their scores.
Nothing is sent to the chat model.

Examples:
  ragchat query "parental leave"
  ragchat query "database connection" -k 10 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	text := strings.Join(args, " ")

	svc, err := openServices(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer svc.Close()

	passages, err := svc.retrieve.Retrieve(ctx, text, queryTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, err := json.MarshalIndent(usecase.ToResults(passages), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(passages) == 0 {
		fmt.Fprintln(out, retriever.NoDocumentsFound)
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(passages), text)
	for i, p := range passages {
		fmt.Fprintf(out, "--- [%d] %s#%d (score: %.3f) ---\n", i+1, p.Source, p.ChunkIndex, p.Score)
		body := p.Text
		if len(body) > 500 {
			body = body[:500] + "..."
		}
		fmt.Fprintln(out, body)
		fmt.Fprintln(out)
	}
	return nil
}
