// Package memstore provides an in-memory VectorIndex for tests and
// throwaway runs. Nothing survives the process.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ragchat/internal/adapter/store"
	"ragchat/internal/domain"
	"ragchat/internal/port"
)

var _ port.VectorIndex = (*MemoryIndex)(nil)

type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]domain.IndexEntry
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]domain.IndexEntry),
	}
}

func (s *MemoryIndex) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) ([]string, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvalidArgument, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := store.CheckDimensions(s.dimension, vectors)
	if err != nil {
		return nil, err
	}
	s.dimension = dim

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		s.entries[id] = domain.IndexEntry{
			ID:       id,
			Vector:   append([]float32(nil), vectors[i]...),
			Text:     c.Text,
			Metadata: c.EntryMetadata(),
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *MemoryIndex) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.SearchEntries(ctx, s.entries, s.dimension, query, k)
}

func (s *MemoryIndex) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.Metadata[domain.MetaSource] == source {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Entries returns a snapshot of every stored entry.
func (s *MemoryIndex) Entries() []domain.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *MemoryIndex) Persist() error { return nil }

func (s *MemoryIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *MemoryIndex) Close() error { return nil }
