package cli

import (
	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"

	"ragchat/internal/adapter/fs"
	"ragchat/internal/adapter/httpapi"
	"ragchat/internal/usecase"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat and retrieval over HTTP",
	Long: `Start a JSON HTTP API:

  POST /api/v1/sessions/:id/messages  {"message": "..."}
  GET  /api/v1/sessions/:id
  POST /api/v1/query                  {"query": "...", "k": 4}
  GET  /api/v1/health`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-index changed files while serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	if serveAddr == "" {
		serveAddr = cfg.Server.Addr
	}

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	model, err := newLLM(cfg)
	if err != nil {
		return err
	}
	chat := usecase.NewChatUseCase(svc.retriever, svc.sessions, model, usecase.ChatOptions{
		TopK:             cfg.Retrieve.TopK,
		SystemPrompt:     cfg.LLM.SystemPrompt,
		CondenseQuestion: cfg.Chat.CondenseQuestion,
		Save:             cfg.Session.Save,
	}, Logger("chat"))

	if serveWatch {
		ingest, walker, err := newIngest(cfg, svc.embedder, svc.index, 0, nil)
		if err != nil {
			return err
		}
		if svc.cached != nil {
			ingest.OnChange(svc.cached)
		}
		watcher := fs.NewWatcher(cfg.DataFolder, walker, fs.DefaultDebounce, Logger("watch"))
		go func() {
			if err := ingest.Watch(ctx, cfg.DataFolder, watcher); err != nil {
				Logger("watch").Error("watcher stopped", "err", err)
			}
		}()
	}

	server := httpapi.NewServer(httpapi.Deps{
		Chat:     chat,
		Retrieve: svc.retrieve,
		Sessions: svc.sessions,
		Health: func() fiber.Map {
			st := svc.stats()
			return fiber.Map{
				"entries":         st.Entries,
				"dimension":       st.Dimension,
				"embedding_model": st.EmbeddingModel,
				"model":           model.ModelName(),
			}
		},
	}, Logger("http"))
	return server.Listen(ctx, serveAddr)
}
