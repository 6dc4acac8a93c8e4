package domain

import (
	"strconv"
	"time"
)

type Document struct {
	SourcePath string
	FileType   string
	Text       string
}

type Chunk struct {
	Text       string
	SourcePath string
	FileType   string
	ChunkIndex int
	Metadata   map[string]string
}

// Metadata keys stored with every index entry.
const (
	MetaSource     = "source"
	MetaFileType   = "file_type"
	MetaChunkIndex = "chunk_index"
)

// EntryMetadata flattens the chunk provenance into the metadata map stored
// alongside the vector. Provenance keys always reflect the chunk fields.
func (c Chunk) EntryMetadata() map[string]string {
	m := make(map[string]string, len(c.Metadata)+3)
	for k, v := range c.Metadata {
		m[k] = v
	}
	m[MetaSource] = c.SourcePath
	m[MetaFileType] = c.FileType
	m[MetaChunkIndex] = strconv.Itoa(c.ChunkIndex)
	return m
}

type IndexEntry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

type ScoredEntry struct {
	Entry IndexEntry
	Score float64
}

type Passage struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// PassageFromEntry converts a search hit into a passage.
func PassageFromEntry(se ScoredEntry) Passage {
	idx, _ := strconv.Atoi(se.Entry.Metadata[MetaChunkIndex])
	return Passage{
		ID:         se.Entry.ID,
		Text:       se.Entry.Text,
		Source:     se.Entry.Metadata[MetaSource],
		ChunkIndex: idx,
		Score:      se.Score,
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	ID    string `json:"id"`
	Turns []Turn `json:"turns"`
}

// Clone returns a deep copy that callers may mutate freely.
func (s Session) Clone() Session {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return Session{ID: s.ID, Turns: turns}
}

type FileFailure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

type IngestReport struct {
	FilesScanned       int           `json:"files_scanned"`
	FilesSkipped       int           `json:"files_skipped"`
	FilesFailed        int           `json:"files_failed"`
	DocumentsLoaded    int           `json:"documents_loaded"`
	ChunksProduced     int           `json:"chunks_produced"`
	ChunksDeduplicated int           `json:"chunks_deduplicated"`
	EntriesStored      int           `json:"entries_stored"`
	Failures           []FileFailure `json:"failures,omitempty"`
	Duration           time.Duration `json:"duration"`
}

type Stats struct {
	Entries        int       `json:"entries"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embedding_model"`
	PersistedAt    time.Time `json:"persisted_at"`
}
