package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// PDFLoader extracts the text layer of a PDF, one block per page.
// Scanned pages without text come back empty.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader { return &PDFLoader{} }

func (l *PDFLoader) CanHandle(ext string) bool { return ext == ".pdf" }

func (l *PDFLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, loadError(path, "open pdf: %v", err)
	}
	defer f.Close()

	pages, err := readPages(ctx, r)
	if err != nil {
		return domain.Document{}, loadError(path, "read pdf: %v", err)
	}
	return domain.Document{
		SourcePath: path,
		FileType:   "pdf",
		Text:       strings.TrimSpace(strings.Join(pages, "\n\n")),
	}, nil
}

// readPages returns the trimmed text of every page. The reader panics on
// malformed object graphs, so that is turned into an error here.
func readPages(ctx context.Context, r *pdf.Reader) (pages []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	fonts := make(map[string]*pdf.Font)
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}
