package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestMemoryIndexUpsertSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(0)

	ids, err := idx.Upsert(ctx,
		[]domain.Chunk{{Text: "a", SourcePath: "x.md"}, {Text: "b", SourcePath: "y.md"}},
		[][]float32{{1, 0}, {0, 1}},
	)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, idx.Dimension())

	res, err := idx.SimilaritySearch(ctx, []float32{0.1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].Entry.Text)

	_, err = idx.Upsert(ctx, []domain.Chunk{{Text: "c"}}, [][]float32{{1, 2, 3}})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
	assert.Equal(t, 2, idx.Count())

	n, err := idx.DeleteBySource(ctx, "x.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, idx.Entries(), 1)
}

func TestMemoryIndexConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Upsert(ctx, []domain.Chunk{{Text: "t"}}, [][]float32{{1, 1}})
			assert.NoError(t, err)
			_, err = idx.SimilaritySearch(ctx, []float32{1, 0}, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, idx.Count())
}
