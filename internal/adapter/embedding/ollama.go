package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"ragchat/internal/adapter/backend"
	"ragchat/internal/port"
)

var _ port.Embedder = (*OllamaEmbedder)(nil)

const (
	DefaultOllamaURL = "http://localhost:11434"
	DefaultTimeout   = 60 * time.Second
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// Dimension may be left at zero; it is learned from the first response.
	Dimension int
}

// OllamaEmbedder calls the Ollama /api/embed endpoint, which accepts a batch
// of inputs in one request.
type OllamaEmbedder struct {
	client    *http.Client
	baseURL   string
	model     string
	timeout   time.Duration
	dimension atomic.Int64
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	e := &OllamaEmbedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = knownDimension(cfg.Model)
	}
	e.dimension.Store(int64(cfg.Dimension))
	return e
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, backend.Transport(ctx, "ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, statusError("ollama", resp.StatusCode, data)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backend.Transport(ctx, "ollama", fmt.Errorf("decode response: %w", err))
	}
	if err := checkVectors("ollama", len(texts), out.Embeddings); err != nil {
		return nil, err
	}

	e.dimension.Store(int64(len(out.Embeddings[0])))
	return out.Embeddings, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Ping checks that the Ollama server answers without running inference.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return backend.Transport(ctx, "ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return statusError("ollama", resp.StatusCode, data)
	}
	return nil
}

func knownDimension(model string) int {
	name, _, _ := strings.Cut(model, ":")
	switch name {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	}
	return 0
}
