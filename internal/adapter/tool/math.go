package tool

import (
	"context"
	"encoding/json"
	"strconv"
)

type AddArgs struct {
	X int `json:"x" jsonschema:"first addend"`
	Y int `json:"y" jsonschema:"second addend"`
}

type MultiplyArgs struct {
	A int `json:"a" jsonschema:"first factor"`
	B int `json:"b" jsonschema:"second factor"`
}

// ArithmeticResult is the structured result of add and multiply.
type ArithmeticResult struct {
	Result int `json:"result"`
}

type Add struct{}

func (Add) Name() string        { return "add" }
func (Add) Description() string { return "Add two integers and return the sum." }

func (Add) InputSchema() map[string]any {
	return objectSchema([]string{"x", "y"}, map[string]any{
		"x": map[string]any{"type": "integer", "description": "first addend"},
		"y": map[string]any{"type": "integer", "description": "second addend"},
	})
}

func (a Add) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var in AddArgs
	if err := decodeArgs(a.Name(), args, &in); err != nil {
		return "", err
	}
	return strconv.Itoa(a.Apply(in)), nil
}

func (Add) Apply(in AddArgs) int { return in.X + in.Y }

type Multiply struct{}

func (Multiply) Name() string        { return "multiply" }
func (Multiply) Description() string { return "Multiply two integers and return the product." }

func (Multiply) InputSchema() map[string]any {
	return objectSchema([]string{"a", "b"}, map[string]any{
		"a": map[string]any{"type": "integer", "description": "first factor"},
		"b": map[string]any{"type": "integer", "description": "second factor"},
	})
}

func (m Multiply) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var in MultiplyArgs
	if err := decodeArgs(m.Name(), args, &in); err != nil {
		return "", err
	}
	return strconv.Itoa(m.Apply(in)), nil
}

func (Multiply) Apply(in MultiplyArgs) int { return in.A * in.B }
