package loader

import (
	"context"
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

// MarkdownLoader keeps the prose and code of a markdown file and drops
// link targets, images and front matter.
type MarkdownLoader struct {
	exts extSet
}

func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{exts: newExtSet(".md", ".markdown", ".mdx")}
}

func (l *MarkdownLoader) CanHandle(ext string) bool { return l.exts.has(ext) }

func (l *MarkdownLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	text, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{SourcePath: path, FileType: fileType(path), Text: cleanMarkdown(text)}, nil
}

var (
	frontMatter   = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	mdImages      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinks       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHTMLComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	mdNewlines    = regexp.MustCompile(`\n{3,}`)
)

func cleanMarkdown(content string) string {
	content = frontMatter.ReplaceAllString(content, "")
	content = mdHTMLComment.ReplaceAllString(content, "")
	content = mdImages.ReplaceAllString(content, "$1")
	content = mdLinks.ReplaceAllString(content, "$1")
	content = mdNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
