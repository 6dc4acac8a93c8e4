package loader

import (
	"bytes"
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// TextLoader reads UTF-8 plain text.
type TextLoader struct {
	exts extSet
}

func NewTextLoader() *TextLoader {
	return &TextLoader{exts: newExtSet(".txt", ".text", ".log", ".csv", ".rst")}
}

func (l *TextLoader) CanHandle(ext string) bool { return l.exts.has(ext) }

func (l *TextLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	text, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{SourcePath: path, FileType: fileType(path), Text: text}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readText reads a file that must be valid UTF-8 text. NUL bytes are taken
// as a sign of binary content.
func readText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", loadError(path, "read: %v", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", loadError(path, "content is not valid UTF-8")
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", loadError(path, "content looks binary")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func fileType(path string) string {
	return strings.TrimPrefix(Ext(path), ".")
}
