package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		path string
		ok   bool
	}{
		{"notes.txt", true},
		{"README.MD", true},
		{"page.html", true},
		{"paper.pdf", true},
		{"report.docx", true},
		{"image.png", false},
		{"Makefile", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, ok := r.Lookup(tt.path)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestRegistryUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", []byte{0x89, 'P', 'N', 'G'})

	_, err := DefaultRegistry().Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedType))
}

func TestTextLoader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("\xEF\xBB\xBFline one\r\nline two\n"))

	doc, err := NewTextLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", doc.Text)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, path, doc.SourcePath)
}

func TestTextLoaderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	tests := map[string][]byte{
		"invalid.md": {0xff, 0xfe, 0xfd, 0x00, 0x81},
		"nul.txt":    []byte("abc\x00def"),
		"latin1.txt": {'c', 'a', 'f', 0xe9},
	}

	r := DefaultRegistry()
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name, data)
			_, err := r.Load(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrLoader))
		})
	}
}

func TestTextLoaderMissingFile(t *testing.T) {
	_, err := NewTextLoader().Load(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLoader))
}

func TestMarkdownLoader(t *testing.T) {
	dir := t.TempDir()
	src := "---\ntitle: x\n---\n# Heading\n\nSee [the docs](https://example.com) and ![diagram](d.png).\n\n\n\n```go\nfmt.Println(1)\n```\n"
	path := writeFile(t, dir, "guide.md", []byte(src))

	doc, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "md", doc.FileType)
	assert.NotContains(t, doc.Text, "title: x")
	assert.NotContains(t, doc.Text, "https://example.com")
	assert.Contains(t, doc.Text, "See the docs and diagram.")
	assert.Contains(t, doc.Text, "# Heading")
	assert.Contains(t, doc.Text, "fmt.Println(1)")
	assert.NotContains(t, doc.Text, "\n\n\n")
}

func TestHTMLLoader(t *testing.T) {
	dir := t.TempDir()
	src := `<html><head><title>T</title><style>p{}</style></head>
<body><script>alert(1)</script><h1>Title</h1><p>Fish &amp; chips</p><div>second    block</div></body></html>`
	path := writeFile(t, dir, "page.html", []byte(src))

	doc, err := NewHTMLLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "html", doc.FileType)
	assert.NotContains(t, doc.Text, "alert")
	assert.NotContains(t, doc.Text, "p{}")
	assert.NotContains(t, doc.Text, "<")
	assert.Contains(t, doc.Text, "Title")
	assert.Contains(t, doc.Text, "Fish & chips")
	assert.Contains(t, doc.Text, "second block")
}

// buildPDF writes a minimal uncompressed PDF with one page per entry of
// pages, each drawn with a single Tj in Helvetica.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	fontID := 3 + 2*len(pages)
	for i, text := range pages {
		pageID := 3 + 2*i
		kids[i] = fmt.Sprintf("%d 0 R", pageID)
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, pageID+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
	}, objects...)
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFLoader(t *testing.T) {
	dir := t.TempDir()

	t.Run("extracts every page", func(t *testing.T) {
		path := writeFile(t, dir, "paper.pdf", buildPDF("Vectors live in bbolt.", "Sessions are JSON files."))
		doc, err := NewPDFLoader().Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "pdf", doc.FileType)
		assert.Equal(t, path, doc.SourcePath)
		assert.Contains(t, doc.Text, "Vectors live in bbolt.")
		assert.Contains(t, doc.Text, "Sessions are JSON files.")
		assert.Less(t, strings.Index(doc.Text, "Vectors"), strings.Index(doc.Text, "Sessions"))
	})

	t.Run("not a pdf", func(t *testing.T) {
		path := writeFile(t, dir, "fake.pdf", []byte("just some text pretending to be a pdf"))
		_, err := NewPDFLoader().Load(context.Background(), path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrLoader))
	})

	t.Run("truncated", func(t *testing.T) {
		data := buildPDF("cut short")
		path := writeFile(t, dir, "cut.pdf", data[:len(data)/2])
		_, err := NewPDFLoader().Load(context.Background(), path)
		assert.True(t, errors.Is(err, domain.ErrLoader))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewPDFLoader().Load(context.Background(), filepath.Join(dir, "nope.pdf"))
		assert.True(t, errors.Is(err, domain.ErrLoader))
	})
}

func writeDocx(t *testing.T, path, documentXML string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestDocxLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.docx")
	writeDocx(t, path, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body>
</w:document>`)

	doc, err := NewDocxLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nSecond paragraph", doc.Text)
	assert.Equal(t, "docx", doc.FileType)
}

func TestDocxLoaderRejectsNonArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.docx", []byte("not a zip"))

	_, err := NewDocxLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLoader))
}
