package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"ragchat/internal/domain"
)

// DocxLoader reads the paragraphs of an Office Open XML word document.
type DocxLoader struct{}

func NewDocxLoader() *DocxLoader { return &DocxLoader{} }

func (l *DocxLoader) CanHandle(ext string) bool { return ext == ".docx" }

func (l *DocxLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return domain.Document{}, loadError(path, "open archive: %v", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return domain.Document{}, loadError(path, "open document.xml: %v", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return domain.Document{}, loadError(path, "read document.xml: %v", err)
		}

		text, err := parseDocumentXML(content)
		if err != nil {
			return domain.Document{}, loadError(path, "parse document.xml: %v", err)
		}
		return domain.Document{SourcePath: path, FileType: "docx", Text: text}, nil
	}

	return domain.Document{}, loadError(path, "word/document.xml missing")
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
