package chunker

import (
	"fmt"
	"iter"
	"slices"

	"ragchat/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 80
)

// separators are tried in order, from the largest natural boundary down.
// When none fits the window the chunk is cut at the size limit.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// RecursiveChunker splits text into chunks of at most maxSize characters
// where consecutive chunks share exactly overlap characters. A chunk ends at
// the largest natural boundary available inside its window.
type RecursiveChunker struct {
	maxSize int
	overlap int
}

func NewRecursiveChunker(maxSize, overlap int) (*RecursiveChunker, error) {
	if maxSize <= 0 || overlap < 0 {
		return nil, &domain.ConfigError{
			Key:    "index.chunk_size",
			Reason: fmt.Sprintf("chunk size %d and overlap %d must be positive", maxSize, overlap),
		}
	}
	if maxSize <= overlap {
		return nil, &domain.ConfigError{
			Key:    "index.chunk_overlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", overlap, maxSize),
		}
	}
	return &RecursiveChunker{maxSize: maxSize, overlap: overlap}, nil
}

func (c *RecursiveChunker) MaxSize() int { return c.maxSize }
func (c *RecursiveChunker) Overlap() int { return c.overlap }

func (c *RecursiveChunker) Split(doc domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(doc.Text)
		n := len(runes)
		if n == 0 {
			return
		}
		if n <= c.maxSize {
			yield(newChunk(doc, doc.Text, 0))
			return
		}

		start := 0
		for idx := 0; ; idx++ {
			if n-start <= c.maxSize {
				yield(newChunk(doc, string(runes[start:]), idx))
				return
			}
			end := c.cut(runes, start)
			if !yield(newChunk(doc, string(runes[start:end]), idx)) {
				return
			}
			start = end - c.overlap
		}
	}
}

// Chunk collects the whole sequence.
func (c *RecursiveChunker) Chunk(doc domain.Document) []domain.Chunk {
	return slices.Collect(c.Split(doc))
}

// cut picks the end of the chunk starting at start. The end is always past
// start+overlap so the next chunk makes progress.
func (c *RecursiveChunker) cut(runes []rune, start int) int {
	lo := start + c.overlap + 1
	hi := start + c.maxSize
	for _, sep := range separators {
		for end := hi; end >= lo && end >= len(sep); end-- {
			if endsWith(runes[:end], sep) {
				return end
			}
		}
	}
	return hi
}

func endsWith(runes, suffix []rune) bool {
	if len(runes) < len(suffix) {
		return false
	}
	return slices.Equal(runes[len(runes)-len(suffix):], suffix)
}

func newChunk(doc domain.Document, text string, idx int) domain.Chunk {
	return domain.Chunk{
		Text:       text,
		SourcePath: doc.SourcePath,
		FileType:   doc.FileType,
		ChunkIndex: idx,
	}
}
