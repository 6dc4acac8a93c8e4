package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"ragchat/config"
	"ragchat/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

func putSchemaVersion(meta *bbolt.Bucket, v int) error {
	return meta.Put(keySchemaVersion, []byte(strconv.Itoa(v)))
}

func getSchemaVersion(meta *bbolt.Bucket) (int, error) {
	raw := meta.Get(keySchemaVersion)
	if raw == nil {
		return 0, fmt.Errorf("schema version missing")
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("bad schema version %q", raw)
	}
	return v, nil
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltIndex) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		v, err := getSchemaVersion(meta)
		if err != nil {
			return err
		}
		info.Version = v
		info.ConfigHash = string(meta.Get(keyConfigHash))
		return nil
	})
	return &info, err
}

// SetConfigHash records the configuration the entries were produced with.
func (s *BoltIndex) SetConfigHash(hash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyConfigHash, []byte(hash))
	})
}

// ComputeConfigHash hashes the settings that change what an entry looks
// like. Vectors from different embedding setups must not be mixed.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider     string `json:"provider"`
		Model        string `json:"model"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
	}{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.EmbeddingModel,
		ChunkSize:    cfg.Index.ChunkSize,
		ChunkOverlap: cfg.Index.ChunkOverlap,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsRebuild bool
	Reason       string
}

// CheckMigration compares the stored configuration hash with cfg. An index
// that never recorded a hash is adopted as is.
func (s *BoltIndex) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("get schema info: %w", err)
	}

	result := &MigrationResult{}
	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		result.NeedsRebuild = true
		result.Reason = "embedding or chunking configuration changed since the index was built"
	}
	return result, nil
}

// Migrate stamps the index with the hash of cfg.
func (s *BoltIndex) Migrate(cfg *config.Config) error {
	return s.SetConfigHash(ComputeConfigHash(cfg))
}

// Clear removes every entry (explicit teardown before a rebuild). The
// dimension is reset so the next upsert may use a different model.
func (s *BoltIndex) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketVectors} {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyConfigHash); err != nil {
			return err
		}
		return meta.Put(keyDimension, []byte("0"))
	})
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	s.entries = make(map[string]domain.IndexEntry)
	s.dimension = 0
	return nil
}
