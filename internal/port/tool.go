package port

import (
	"context"
	"encoding/json"
)

// Tool is a named, schema-described callable exposed to a model runtime.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}
