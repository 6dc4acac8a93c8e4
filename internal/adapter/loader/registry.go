// Package loader turns files into documents. Each loader declares the
// extensions it handles; a Registry resolves a file to its loader once, by
// extension, from a fixed list built at startup.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

type Registry struct {
	loaders []port.Loader
}

func NewRegistry(loaders ...port.Loader) *Registry {
	return &Registry{loaders: loaders}
}

// DefaultRegistry returns the loaders for every supported file type.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewTextLoader(),
		NewMarkdownLoader(),
		NewHTMLLoader(),
		NewPDFLoader(),
		NewDocxLoader(),
	)
}

// Lookup returns the first loader accepting the extension of path.
func (r *Registry) Lookup(path string) (port.Loader, bool) {
	ext := Ext(path)
	if ext == "" {
		return nil, false
	}
	for _, l := range r.loaders {
		if l.CanHandle(ext) {
			return l, true
		}
	}
	return nil, false
}

// Load resolves and runs the loader for path. Unknown extensions return
// domain.ErrUnsupportedType.
func (r *Registry) Load(ctx context.Context, path string) (domain.Document, error) {
	l, ok := r.Lookup(path)
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, path)
	}
	return l.Load(ctx, path)
}

// Ext returns the lower-cased extension of path, including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func loadError(path string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrLoader, path, fmt.Sprintf(format, args...))
}

type extSet map[string]bool

func newExtSet(exts ...string) extSet {
	s := make(extSet, len(exts))
	for _, e := range exts {
		s[e] = true
	}
	return s
}

func (s extSet) has(ext string) bool { return s[ext] }
