package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Adapters wrap one of these with %w so
// callers can branch with errors.Is without knowing the backend.
var (
	// ErrConfiguration indicates the process cannot proceed with the given
	// configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrLoader indicates a single file could not be read or parsed.
	ErrLoader = errors.New("loader error")

	// ErrUnsupportedType indicates no loader handles a file extension.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrBackendUnavailable indicates the embedding or model service could
	// not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrEmbedding indicates the embedding backend rejected the input.
	ErrEmbedding = errors.New("embedding rejected")

	// ErrIndexCorruption indicates the persisted index could not be loaded.
	// It is never downgraded to an empty index.
	ErrIndexCorruption = errors.New("index corruption")

	// ErrSessionRestore indicates a persisted session exists but is unreadable.
	ErrSessionRestore = errors.New("session restore failed")

	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotFound          = errors.New("not found")
)

// ConfigError names the offending configuration key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}
