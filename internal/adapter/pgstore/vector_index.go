// Package pgstore implements the vector index on PostgreSQL with the
// pgvector extension. Writes are durable on commit.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"ragchat/internal/adapter/store"
	"ragchat/internal/domain"
	"ragchat/internal/port"
)

var _ port.VectorIndex = (*PGIndex)(nil)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS ragchat_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ragchat_entries (
	id         UUID PRIMARY KEY,
	text       TEXT NOT NULL,
	metadata   JSONB NOT NULL,
	source     TEXT NOT NULL,
	embedding  VECTOR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ragchat_entries_source_idx ON ragchat_entries (source);
`

type PGIndex struct {
	db        *sql.DB
	mu        sync.RWMutex
	dimension int
	count     int
}

// Open connects, creates the schema if needed and reads the stored
// dimension. dimension is used only when the database has none recorded.
func Open(ctx context.Context, dsn string, dimension int) (*PGIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", domain.ErrBackendUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &PGIndex{db: db, dimension: dimension}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGIndex) load(ctx context.Context) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ragchat_meta WHERE key = 'dimension'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read dimension: %w", err)
	default:
		dim, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: bad stored dimension %q", domain.ErrIndexCorruption, raw)
		}
		s.dimension = dim
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ragchat_entries`).Scan(&s.count); err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	return nil
}

func (s *PGIndex) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) ([]string, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ragchat_entries (id, text, metadata, source, embedding) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		meta := c.EntryMetadata()
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx, ids[i], c.Text, metaJSON, c.SourcePath, pgvector.NewVector(vectors[i])); err != nil {
			return nil, fmt.Errorf("insert entry: %w", err)
		}
	}

	if s.dimension == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ragchat_meta (key, value) VALUES ('dimension', $1)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, strconv.Itoa(dim)); err != nil {
			return nil, fmt.Errorf("store dimension: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.dimension = dim
	s.count += len(ids)
	return ids, nil
}

// SimilaritySearch ranks by pgvector cosine distance (<=>). The score is
// 1 - distance so that it matches the other backends.
func (s *PGIndex) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.ScoredEntry, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}

	s.mu.RLock()
	dim, count := s.dimension, s.count
	s.mu.RUnlock()

	if count == 0 {
		return []domain.ScoredEntry{}, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), dim)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding, 1 - (embedding <=> $1) AS score
		 FROM ragchat_entries
		 ORDER BY embedding <=> $1, id
		 LIMIT $2`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ScoredEntry, 0, k)
	for rows.Next() {
		var (
			se       domain.ScoredEntry
			metaJSON []byte
			vec      pgvector.Vector
		)
		if err := rows.Scan(&se.Entry.ID, &se.Entry.Text, &metaJSON, &vec, &se.Score); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &se.Entry.Metadata); err != nil {
			return nil, fmt.Errorf("%w: entry %s metadata: %v", domain.ErrIndexCorruption, se.Entry.ID, err)
		}
		se.Entry.Vector = vec.Slice()
		results = append(results, se)
	}
	return results, rows.Err()
}

func (s *PGIndex) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM ragchat_entries WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("delete entries for %s: %w", source, err)
	}
	n, _ := res.RowsAffected()
	s.count -= int(n)
	return int(n), nil
}

// Persist is a no-op: committed rows are already durable.
func (s *PGIndex) Persist() error { return nil }

func (s *PGIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *PGIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *PGIndex) Close() error {
	return s.db.Close()
}
