package port

import (
	"context"
	"encoding/json"
)

type MessageRole string

const (
	MessageSystem    MessageRole = "system"
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageTool      MessageRole = "tool"
)

type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// LLM represents a chat language model.
type LLM interface {
	// Generate returns the full reply to the conversation.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Stream returns the reply as a lazy sequence of fragments.
	Stream(ctx context.Context, messages []Message) (TokenStream, error)

	ModelName() string
}

// ToolCallingLLM is an LLM that can ask for tool invocations.
type ToolCallingLLM interface {
	LLM
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error)
}

// TokenStream is a finite, non-restartable producer of text fragments.
// Callers loop on Next, read Fragment, then check Err. Close releases the
// underlying connection and is safe to call more than once.
type TokenStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}
