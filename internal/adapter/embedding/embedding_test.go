package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestOllamaEmbedManyBatchesInOneRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1, 2})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	assert.Equal(t, 768, e.Dimension())

	vectors, err := e.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 1, 2}, vectors[2])
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, e.Dimension())

	v, err := e.Embed(context.Background(), "single")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, v)
}

func TestOllamaErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, "boom", domain.ErrBackendUnavailable},
		{"throttled", http.StatusTooManyRequests, "slow down", domain.ErrBackendUnavailable},
		{"rejected input", http.StatusBadRequest, "input too long", domain.ErrEmbedding},
		{"wrong count", http.StatusOK, `{"embeddings":[[1,2]]}`, domain.ErrEmbedding},
		{"empty vector", http.StatusOK, `{"embeddings":[[],[]]}`, domain.ErrEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Model: "m"})
			_, err := e.EmbedMany(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: url, Model: "m"})
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
	assert.Error(t, e.Ping(context.Background()))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "Go channels and goroutines")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "go CHANNELS and goroutines!")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 64)

	many, err := e.EmbedMany(ctx, []string{"Go channels and goroutines", "other"})
	require.NoError(t, err)
	assert.Equal(t, a1, many[0])

	empty, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	for _, x := range empty {
		assert.Zero(t, x)
	}
}

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.HashEmbedder.EmbedMany(ctx, texts)
}

func TestRateLimitedPassesThrough(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}

	assert.Same(t, inner, NewRateLimited(inner, 0))

	limited := NewRateLimited(inner, 100)
	_, err := limited.EmbedMany(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 8, limited.Dimension())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Embed(ctx, "a")
	assert.Error(t, err)
}
