package port

import (
	"iter"

	"ragchat/internal/domain"
)

// Chunker splits a loaded document into bounded, overlapping chunks.
// The returned sequence is lazy and may be ranged over more than once.
type Chunker interface {
	Split(doc domain.Document) iter.Seq[domain.Chunk]
}
