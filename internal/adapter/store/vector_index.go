package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

var _ port.VectorIndex = (*BoltIndex)(nil)

// IndexFileName is the marker file inside DB_PATH. Its presence means an
// index exists and must be loaded rather than created.
const IndexFileName = "index.db"

var (
	bucketEntries = []byte("entries")
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")

	keyDimension      = []byte("dimension")
	keyEmbeddingModel = []byte("embedding_model")
	keyPersistedAt    = []byte("persisted_at")
)

// BoltIndex implements VectorIndex on top of BoltDB. Every entry is also
// held in memory and searched by brute force.
type BoltIndex struct {
	db        *bbolt.DB
	path      string
	mu        sync.RWMutex
	dimension int
	model     string
	entries   map[string]domain.IndexEntry
}

type Options struct {
	// Dimension of new indexes. Zero adopts the dimension of the first upsert.
	Dimension      int
	EmbeddingModel string
}

type storedEntry struct {
	Text     string            `json:"t"`
	Metadata map[string]string `json:"m,omitempty"`
}

// Exists reports whether dir holds a persisted index.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, IndexFileName))
	return err == nil
}

// Open loads the index under dir if the marker file exists and creates a new
// one otherwise.
func Open(dir string, opts Options) (*BoltIndex, error) {
	if Exists(dir) {
		return Load(dir)
	}
	return create(dir, opts)
}

func create(dir string, opts Options) (*BoltIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := filepath.Join(dir, IndexFileName)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := putSchemaVersion(meta, CurrentSchemaVersion); err != nil {
			return err
		}
		if err := meta.Put(keyDimension, []byte(strconv.Itoa(opts.Dimension))); err != nil {
			return err
		}
		return meta.Put(keyEmbeddingModel, []byte(opts.EmbeddingModel))
	})
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	return &BoltIndex{
		db:        db,
		path:      path,
		dimension: opts.Dimension,
		model:     opts.EmbeddingModel,
		entries:   make(map[string]domain.IndexEntry),
	}, nil
}

// Load opens an existing index. Anything that does not decode cleanly is
// reported as domain.ErrIndexCorruption.
func Load(dir string) (*BoltIndex, error) {
	path := filepath.Join(dir, IndexFileName)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("index %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrIndexCorruption, path, err)
	}

	s := &BoltIndex{
		db:      db,
		path:    path,
		entries: make(map[string]domain.IndexEntry),
	}
	if err := s.loadEntries(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorruption, path, err)
	}
	return s, nil
}

func (s *BoltIndex) loadEntries() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return errors.New("meta bucket missing")
		}
		version, err := getSchemaVersion(meta)
		if err != nil {
			return err
		}
		if version != CurrentSchemaVersion {
			return fmt.Errorf("unsupported schema version %d (want %d)", version, CurrentSchemaVersion)
		}
		s.dimension, err = strconv.Atoi(string(meta.Get(keyDimension)))
		if err != nil {
			return fmt.Errorf("bad dimension: %w", err)
		}
		s.model = string(meta.Get(keyEmbeddingModel))

		entries := tx.Bucket(bucketEntries)
		vectors := tx.Bucket(bucketVectors)
		if entries == nil || vectors == nil {
			return errors.New("entry buckets missing")
		}
		if entries.Stats().KeyN != vectors.Stats().KeyN {
			return errors.New("entry and vector counts differ")
		}

		return entries.ForEach(func(k, v []byte) error {
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("entry %s: %w", k, err)
			}
			vec, err := decodeVector(vectors.Get(k))
			if err != nil {
				return fmt.Errorf("entry %s: %w", k, err)
			}
			if len(vec) != s.dimension {
				return fmt.Errorf("entry %s: dimension %d, index has %d", k, len(vec), s.dimension)
			}
			id := string(k)
			s.entries[id] = domain.IndexEntry{ID: id, Vector: vec, Text: stored.Text, Metadata: stored.Metadata}
			return nil
		})
	})
}

// Upsert writes every entry in a single transaction. The in-memory view is
// only touched after the commit succeeds.
func (s *BoltIndex) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) ([]string, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvalidArgument, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := CheckDimensions(s.dimension, vectors)
	if err != nil {
		return nil, err
	}

	staged := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		staged[i] = domain.IndexEntry{
			ID:       uuid.NewString(),
			Vector:   append([]float32(nil), vectors[i]...),
			Text:     c.Text,
			Metadata: c.EntryMetadata(),
		}
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		eb := tx.Bucket(bucketEntries)
		vb := tx.Bucket(bucketVectors)
		for _, e := range staged {
			data, err := json.Marshal(storedEntry{Text: e.Text, Metadata: e.Metadata})
			if err != nil {
				return err
			}
			if err := eb.Put([]byte(e.ID), data); err != nil {
				return err
			}
			if err := vb.Put([]byte(e.ID), encodeVector(e.Vector)); err != nil {
				return err
			}
		}
		if s.dimension == 0 {
			return tx.Bucket(bucketMeta).Put(keyDimension, []byte(strconv.Itoa(dim)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %d entries: %w", len(staged), err)
	}

	s.dimension = dim
	ids := make([]string, len(staged))
	for i, e := range staged {
		s.entries[e.ID] = e
		ids[i] = e.ID
	}
	return ids, nil
}

// SimilaritySearch finds the k nearest entries using cosine similarity.
func (s *BoltIndex) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.ScoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SearchEntries(ctx, s.entries, s.dimension, query, k)
}

// Persist stamps the index and flushes it to disk.
func (s *BoltIndex) Persist() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyPersistedAt, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return s.db.Sync()
}

// DeleteBySource removes every entry whose source metadata equals source.
func (s *BoltIndex) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.entries {
		if e.Metadata[domain.MetaSource] == source {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		eb := tx.Bucket(bucketEntries)
		vb := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := eb.Delete([]byte(id)); err != nil {
				return err
			}
			if err := vb.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete entries for %s: %w", source, err)
	}
	for _, id := range ids {
		delete(s.entries, id)
	}
	return len(ids), nil
}

func (s *BoltIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *BoltIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *BoltIndex) Stats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{Entries: len(s.entries), Dimension: s.dimension, EmbeddingModel: s.model}
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyPersistedAt)
		if raw == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return err
		}
		stats.PersistedAt = t
		return nil
	})
	return stats, err
}

func (s *BoltIndex) Path() string {
	return s.path
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}

// CheckDimensions returns the dimension an upsert will use, adopting the
// first vector's size when the index has none yet.
func CheckDimensions(current int, vectors [][]float32) (int, error) {
	dim := current
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", domain.ErrInvalidArgument)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, index has %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// SearchEntries scores every entry and returns the top k, ties broken by id
// so that results are stable across reloads.
func SearchEntries(ctx context.Context, entries map[string]domain.IndexEntry, dim int, query []float32, k int) ([]domain.ScoredEntry, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(entries) == 0 {
		return []domain.ScoredEntry{}, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredEntry, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, domain.ScoredEntry{Entry: e, Score: CosineSimilarity(query, e.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.ID < scored[j].Entry.ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// CosineSimilarity returns 0 when either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
