package cli

import (
	"context"
	"errors"
	"fmt"

	"ragchat/config"
	"ragchat/internal/adapter/cache"
	"ragchat/internal/adapter/chunker"
	"ragchat/internal/adapter/embedding"
	"ragchat/internal/adapter/fs"
	"ragchat/internal/adapter/llm"
	"ragchat/internal/adapter/loader"
	"ragchat/internal/adapter/memstore"
	"ragchat/internal/adapter/pgstore"
	"ragchat/internal/adapter/retriever"
	"ragchat/internal/adapter/session"
	"ragchat/internal/adapter/store"
	"ragchat/internal/domain"
	"ragchat/internal/port"
	"ragchat/internal/usecase"
)

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	var (
		e   port.Embedder
		err error
	)
	switch cfg.Embedding.Provider {
	case "ollama":
		e = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.EmbeddingModel,
			Timeout:   cfg.Embedding.Timeout.Duration,
			Dimension: cfg.Index.Dimension,
		})
	case "openai":
		e, err = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKeyEnv: cfg.Embedding.APIKeyEnv,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.EmbeddingModel,
			Timeout:   cfg.Embedding.Timeout.Duration,
			Dimension: cfg.Index.Dimension,
		})
	case "hash":
		e = embedding.NewHashEmbedder(cfg.Index.Dimension)
	default:
		return nil, &domain.ConfigError{Key: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Embedding.Provider)}
	}
	if err != nil {
		return nil, err
	}
	return embedding.NewRateLimited(e, cfg.Embedding.RequestsPerSecond), nil
}

func newLLM(cfg *config.Config) (port.ToolCallingLLM, error) {
	return llm.New(cfg.LLM.Provider, llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.Model,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout.Duration,
	})
}

// openIndex opens the configured backend. The bolt backend loads DB_PATH
// when its marker file exists and creates it otherwise.
func openIndex(ctx context.Context, cfg *config.Config, embedder port.Embedder) (port.VectorIndex, error) {
	dim := cfg.Index.Dimension
	if dim == 0 {
		dim = embedder.Dimension()
	}

	switch cfg.Index.Backend {
	case "bolt":
		idx, err := store.Open(cfg.DBPath, store.Options{Dimension: dim, EmbeddingModel: embedder.ModelName()})
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "memory":
		return memstore.NewMemoryIndex(dim), nil
	case "postgres":
		idx, err := pgstore.Open(ctx, cfg.Index.PostgresDSN, dim)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, &domain.ConfigError{Key: "index.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Index.Backend)}
	}
}

func newIngest(cfg *config.Config, embedder port.Embedder, index port.VectorIndex, workers int, progress func(string, int, int)) (*usecase.IngestUseCase, *fs.Walker, error) {
	chk, err := chunker.NewRecursiveChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	if workers <= 0 {
		workers = cfg.Index.Workers
	}

	walker := fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)
	uc := usecase.NewIngestUseCase(
		walker,
		loader.DefaultRegistry(),
		chk,
		embedder,
		index,
		usecase.IngestOptions{
			BatchSize:      cfg.Index.BatchSize,
			Workers:        workers,
			DedupThreshold: cfg.Index.DedupThreshold,
			Progress:       progress,
		},
		Logger("ingest"),
	)
	return uc, walker, nil
}

// services is the set of components shared by chat, query, serve and mcp.
type services struct {
	cfg       *config.Config
	embedder  port.Embedder
	index     port.VectorIndex
	retriever port.Retriever
	cached    *cache.CachedRetriever
	retrieve  *usecase.RetrieveUseCase
	sessions  *session.FileStore
}

// openServices validates the configuration and opens the index. When the
// index is empty the data folder is ingested first, so a fresh DB_PATH is
// usable without a separate index run.
func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	index, err := openIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	if bolt, ok := index.(*store.BoltIndex); ok {
		res, err := bolt.CheckMigration(cfg)
		if err != nil {
			index.Close()
			return nil, err
		}
		if res.NeedsRebuild {
			Logger("index").Warn("index was built with different settings; run `ragchat index --rebuild`", "reason", res.Reason)
		}
	}

	if index.Count() == 0 {
		if err := cfg.ValidateDataFolder(); err != nil {
			index.Close()
			return nil, err
		}
		uc, _, err := newIngest(cfg, embedder, index, 0, nil)
		if err != nil {
			index.Close()
			return nil, err
		}
		Logger("index").Info("index is empty, ingesting data folder", "path", cfg.DataFolder)
		report, err := uc.Ingest(ctx, cfg.DataFolder)
		if err != nil {
			index.Close()
			return nil, err
		}
		Logger("index").Info("ingestion finished", "files", report.DocumentsLoaded, "entries", report.EntriesStored, "failed", report.FilesFailed)
		if bolt, ok := index.(*store.BoltIndex); ok {
			if err := bolt.Migrate(cfg); err != nil {
				index.Close()
				return nil, err
			}
		}
	}

	var (
		r      port.Retriever
		cached *cache.CachedRetriever
	)
	r = retriever.NewSemanticRetriever(index, embedder, retriever.Options{
		MinScore:       cfg.Retrieve.MinScore,
		MMRLambda:      cfg.Retrieve.MMRLambda,
		MMRFetchFactor: cfg.Retrieve.MMRFetchFactor,
	}, Logger("retriever"))
	if cfg.Retrieve.CacheSize > 0 {
		cached = cache.NewCachedRetriever(r, cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL.Duration))
		r = cached
	}

	return &services{
		cfg:       cfg,
		embedder:  embedder,
		index:     index,
		retriever: r,
		cached:    cached,
		retrieve:  usecase.NewRetrieveUseCase(r, cfg.Retrieve.TopK, Logger("retrieve")),
		sessions:  session.NewFileStore(cfg.Session.Dir, cfg.Session.MaxTurns, Logger("session")),
	}, nil
}

func (s *services) Close() error {
	return s.index.Close()
}

// stats describes the open index for status output.
func (s *services) stats() domain.Stats {
	if bolt, ok := s.index.(*store.BoltIndex); ok {
		if st, err := bolt.Stats(); err == nil {
			return st
		}
	}
	return domain.Stats{
		Entries:        s.index.Count(),
		Dimension:      s.index.Dimension(),
		EmbeddingModel: s.embedder.ModelName(),
	}
}

// clearer is implemented by backends that can drop every entry.
type clearer interface {
	Clear() error
}

func clearIndex(index port.VectorIndex) error {
	c, ok := index.(clearer)
	if !ok {
		return errors.New("this index backend does not support --rebuild")
	}
	return c.Clear()
}
