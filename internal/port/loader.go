package port

import (
	"context"

	"ragchat/internal/domain"
)

// Loader turns one file into a Document.
type Loader interface {
	// CanHandle reports whether the loader accepts the extension. The
	// extension is lower-case and includes the leading dot.
	CanHandle(ext string) bool

	// Load reads the file at path. Failures wrap domain.ErrLoader.
	Load(ctx context.Context, path string) (domain.Document, error)
}
