package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// maxBatch is the largest input list sent in one embeddings request.
const maxBatch = 100

type OpenAIConfig struct {
	APIKeyEnv string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Dimension int
}

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	dimension atomic.Int64
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, &domain.ConfigError{Key: cfg.APIKeyEnv, Reason: "API key not set"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	e := &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = knownDimension(cfg.Model)
	}
	e.dimension.Store(int64(cfg.Dimension))
	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatch {
		end := min(i+maxBatch, len(texts))
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}

	e.dimension.Store(int64(len(all[0])))
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, openAIError(ctx, err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	if err := checkVectors("openai", len(texts), vectors); err != nil {
		return nil, fmt.Errorf("model %s: %w", e.model, err)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
