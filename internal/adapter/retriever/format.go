package retriever

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// NoDocumentsFound is what tools and prompts show for an empty result.
const NoDocumentsFound = "No relevant documents found."

// FormatPassages renders passages as numbered blocks separated by blank
// lines.
func FormatPassages(passages []domain.Passage) string {
	if len(passages) == 0 {
		return NoDocumentsFound
	}

	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s#%d, %.3f) %s", i+1, p.Source, p.ChunkIndex, p.Score, strings.TrimSpace(p.Text))
	}
	return b.String()
}

// ContextText joins passage texts for a prompt's context section.
func ContextText(passages []domain.Passage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, strings.TrimSpace(p.Text))
	}
	return strings.Join(texts, "\n\n")
}
