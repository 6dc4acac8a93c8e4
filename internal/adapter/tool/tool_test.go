package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/domain"
)

type stubRetriever struct {
	passages []domain.Passage
	query    string
	k        int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, k int) ([]domain.Passage, error) {
	s.query, s.k = query, k
	return s.passages, nil
}

func TestArithmeticTools(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"add", `{"x":2,"y":40}`, "42"},
		{"add", `{"x":-5,"y":3}`, "-2"},
		{"multiply", `{"a":6,"b":7}`, "42"},
		{"multiply", `{"a":0,"b":9}`, "0"},
	}

	r := NewRegistry(Add{}, Multiply{})
	for _, tt := range tests {
		t.Run(tt.name+tt.args, func(t *testing.T) {
			got, err := r.Invoke(context.Background(), tt.name, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArithmeticRejectsBadArgs(t *testing.T) {
	_, err := Add{}.Invoke(context.Background(), json.RawMessage(`{"x":"two"}`))
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestUnknownTool(t *testing.T) {
	_, err := NewRegistry(Add{}).Invoke(context.Background(), "divide", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSpecs(t *testing.T) {
	r := NewRegistry(Add{}, Multiply{}, NewSearchDocuments(&stubRetriever{}, 4))
	specs := r.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "add", specs[0].Name)
	assert.Equal(t, "search_documents", specs[2].Name)
	assert.Equal(t, "object", specs[2].InputSchema["type"])
}

func TestSearchDocuments(t *testing.T) {
	stub := &stubRetriever{passages: []domain.Passage{{Text: "bbolt stores buckets", Source: "notes.md", Score: 0.8}}}
	s := NewSearchDocuments(stub, 3)

	out, err := s.Invoke(context.Background(), json.RawMessage(`{"query":"bbolt"}`))
	require.NoError(t, err)
	assert.Equal(t, "bbolt", stub.query)
	assert.Equal(t, 3, stub.k)
	assert.Contains(t, out, "bbolt stores buckets")
	assert.Contains(t, out, "notes.md#0")

	_, err = s.Invoke(context.Background(), json.RawMessage(`{"query":"x","k":9}`))
	require.NoError(t, err)
	assert.Equal(t, 9, stub.k)
}

func TestSearchDocumentsEmpty(t *testing.T) {
	s := NewSearchDocuments(&stubRetriever{}, 3)

	out, err := s.Invoke(context.Background(), json.RawMessage(`{"query":"nothing"}`))
	require.NoError(t, err)
	assert.Equal(t, retriever.NoDocumentsFound, out)

	_, err = s.Invoke(context.Background(), json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
