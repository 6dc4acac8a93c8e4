package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/adapter/embedding"
	"ragchat/internal/adapter/memstore"
	"ragchat/internal/domain"
	"ragchat/internal/port"
)

func seedIndex(t *testing.T, emb *embedding.HashEmbedder, texts ...string) *memstore.MemoryIndex {
	t.Helper()
	idx := memstore.NewMemoryIndex(emb.Dimension())
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Text: text, SourcePath: "doc.txt", FileType: "txt", ChunkIndex: i}
	}
	vectors, err := emb.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	_, err = idx.Upsert(context.Background(), chunks, vectors)
	require.NoError(t, err)
	return idx
}

func TestRetrieveRanksRelevantPassages(t *testing.T) {
	emb := embedding.NewHashEmbedder(4096)
	idx := seedIndex(t, emb,
		"alpha beta gamma",
		"delta epsilon zeta",
		"alpha beta eta theta iota kappa",
	)
	r := NewSemanticRetriever(idx, emb, Options{MinScore: DefaultMinScore}, nil)

	passages, err := r.Retrieve(context.Background(), "alpha beta", 4)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "alpha beta gamma", passages[0].Text)
	assert.Equal(t, "doc.txt", passages[0].Source)
	assert.Equal(t, 0, passages[0].ChunkIndex)
	assert.Greater(t, passages[0].Score, passages[1].Score)
}

func TestRetrieveUnrelatedQueryIsEmpty(t *testing.T) {
	emb := embedding.NewHashEmbedder(4096)
	idx := seedIndex(t, emb, "alpha beta gamma", "delta epsilon zeta")
	r := NewSemanticRetriever(idx, emb, Options{MinScore: DefaultMinScore}, nil)

	passages, err := r.Retrieve(context.Background(), "xylophone quasar", 4)
	require.NoError(t, err)
	assert.NotNil(t, passages)
	assert.Empty(t, passages)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	emb := embedding.NewHashEmbedder(64)
	r := NewSemanticRetriever(memstore.NewMemoryIndex(64), emb, Options{}, nil)

	passages, err := r.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieveRejectsBadK(t *testing.T) {
	emb := embedding.NewHashEmbedder(64)
	r := NewSemanticRetriever(memstore.NewMemoryIndex(64), emb, Options{}, nil)

	_, err := r.Retrieve(context.Background(), "q", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

type failingEmbedder struct{ port.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, domain.ErrBackendUnavailable
}

func TestRetrievePropagatesEmbeddingErrors(t *testing.T) {
	emb := embedding.NewHashEmbedder(64)
	idx := seedIndex(t, emb, "alpha")
	r := NewSemanticRetriever(idx, failingEmbedder{emb}, Options{}, nil)

	_, err := r.Retrieve(context.Background(), "alpha", 2)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestRetrieveWithMMR(t *testing.T) {
	emb := embedding.NewHashEmbedder(4096)
	idx := seedIndex(t, emb,
		"alpha beta gamma one",
		"alpha beta gamma one",
		"alpha beta delta two",
	)
	r := NewSemanticRetriever(idx, emb, Options{MinScore: 0.1, MMRLambda: 0.5}, nil)

	passages, err := r.Retrieve(context.Background(), "alpha beta", 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.NotEqual(t, passages[0].Text, passages[1].Text)
}

func TestFormatPassages(t *testing.T) {
	assert.Equal(t, NoDocumentsFound, FormatPassages(nil))

	out := FormatPassages([]domain.Passage{
		{Text: "first ", Source: "a.md", ChunkIndex: 0, Score: 0.91},
		{Text: "second", Source: "b.md", ChunkIndex: 3, Score: 0.5},
	})
	assert.Equal(t, "[1] (a.md#0, 0.910) first\n\n[2] (b.md#3, 0.500) second", out)
	assert.Equal(t, 2, strings.Count(out, "["))
}

type scriptedLLM struct {
	reply string
	err   error
	got   []port.Message
}

func (s *scriptedLLM) Generate(_ context.Context, msgs []port.Message) (string, error) {
	s.got = msgs
	return s.reply, s.err
}

func (s *scriptedLLM) Stream(context.Context, []port.Message) (port.TokenStream, error) {
	return nil, errors.New("not used")
}

func (s *scriptedLLM) ModelName() string { return "scripted" }

func TestCondenser(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "Who wrote Dune?"},
		{Role: domain.RoleAssistant, Content: "Frank Herbert."},
	}

	t.Run("no history keeps question", func(t *testing.T) {
		llm := &scriptedLLM{reply: "rewritten"}
		assert.Equal(t, "when?", NewCondenser(llm, nil).Condense(context.Background(), nil, "when?"))
		assert.Nil(t, llm.got)
	})

	t.Run("rewrites with history", func(t *testing.T) {
		llm := &scriptedLLM{reply: "  \"When did Frank Herbert write Dune?\"\n"}
		got := NewCondenser(llm, nil).Condense(context.Background(), history, "when?")
		assert.Equal(t, "When did Frank Herbert write Dune?", got)
		require.Len(t, llm.got, 4)
		assert.Equal(t, port.MessageSystem, llm.got[0].Role)
		assert.Equal(t, port.MessageAssistant, llm.got[2].Role)
		assert.Equal(t, "when?", llm.got[3].Content)
	})

	t.Run("model failure keeps question", func(t *testing.T) {
		llm := &scriptedLLM{err: domain.ErrBackendUnavailable}
		assert.Equal(t, "when?", NewCondenser(llm, nil).Condense(context.Background(), history, "when?"))
	})
}
