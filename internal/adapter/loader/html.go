package loader

import (
	"context"
	"html"
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

// HTMLLoader strips markup and keeps visible text, turning block elements
// into line breaks.
type HTMLLoader struct {
	exts extSet
}

func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{exts: newExtSet(".html", ".htm", ".xhtml")}
}

func (l *HTMLLoader) CanHandle(ext string) bool { return l.exts.has(ext) }

func (l *HTMLLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	raw, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{SourcePath: path, FileType: fileType(path), Text: stripHTML(raw)}
	return doc, nil
}

var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|br|hr)[^>]*>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
)

func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockElements.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
