package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/adapter/backend"
	"ragchat/internal/port"
)

var (
	_ port.LLM            = (*OllamaLLM)(nil)
	_ port.ToolCallingLLM = (*OllamaLLM)(nil)
)

// Default configuration values.
const (
	DefaultOllamaURL = "http://localhost:11434"
	DefaultModel     = "llama3.2"
	DefaultTimeout   = 120 * time.Second
)

// Config holds the settings shared by every chat backend.
type Config struct {
	BaseURL     string
	Model       string
	APIKeyEnv   string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OllamaLLM talks to the Ollama /api/chat endpoint.
type OllamaLLM struct {
	client  *http.Client
	baseURL string
	model   string
	opts    *ollamaOptions
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func NewOllamaLLM(cfg Config) *OllamaLLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	l := &OllamaLLM{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
	if cfg.MaxTokens > 0 || cfg.Temperature > 0 {
		l.opts = &ollamaOptions{NumPredict: cfg.MaxTokens, Temperature: cfg.Temperature}
	}
	return l
}

func (l *OllamaLLM) ModelName() string { return l.model }

func (l *OllamaLLM) Generate(ctx context.Context, messages []port.Message) (string, error) {
	resp, err := l.chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (l *OllamaLLM) ChatWithTools(ctx context.Context, messages []port.Message, tools []port.ToolSpec) (port.Message, error) {
	specs := make([]ollamaTool, len(tools))
	for i, t := range tools {
		specs[i] = ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}

	resp, err := l.chat(ctx, messages, specs)
	if err != nil {
		return port.Message{}, err
	}

	msg := port.Message{Role: port.MessageAssistant, Content: resp.Message.Content}
	for _, tc := range resp.Message.ToolCalls {
		args := tc.Function.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, port.ToolCall{
			// Ollama does not number its tool calls.
			ID:        uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg, nil
}

func (l *OllamaLLM) chat(ctx context.Context, messages []port.Message, tools []ollamaTool) (*ollamaChatResponse, error) {
	body, err := l.post(ctx, ollamaChatRequest{
		Model:    l.model,
		Messages: toOllamaMessages(messages),
		Tools:    tools,
		Options:  l.opts,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&chatResp); err != nil {
		return nil, backend.Transport(ctx, "ollama", fmt.Errorf("decode response: %w", err))
	}
	if chatResp.Error != "" {
		return nil, statusError("ollama", http.StatusOK, []byte(chatResp.Error))
	}
	return &chatResp, nil
}

// Stream starts a streaming chat. The returned stream owns the response
// body until Close.
func (l *OllamaLLM) Stream(ctx context.Context, messages []port.Message) (port.TokenStream, error) {
	body, err := l.post(ctx, ollamaChatRequest{
		Model:    l.model,
		Messages: toOllamaMessages(messages),
		Stream:   true,
		Options:  l.opts,
	})
	if err != nil {
		return nil, err
	}
	return &ollamaStream{ctx: ctx, body: body, decoder: json.NewDecoder(body)}, nil
}

func (l *OllamaLLM) post(ctx context.Context, payload ollamaChatRequest) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, backend.Transport(ctx, "ollama", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("ollama", resp.StatusCode, body)
	}
	return resp.Body, nil
}

func toOllamaMessages(messages []port.Message) []ollamaMessage {
	out := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == port.MessageTool {
			om.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			var call ollamaToolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, call)
		}
		out[i] = om
	}
	return out
}

type ollamaStream struct {
	ctx      context.Context
	body     io.ReadCloser
	decoder  *json.Decoder
	fragment string
	err      error
	done     bool
}

func (s *ollamaStream) Next() bool {
	for !s.done {
		var chunk ollamaChatResponse
		if err := s.decoder.Decode(&chunk); err != nil {
			s.done = true
			if err != io.EOF {
				s.err = backend.Transport(s.ctx, "ollama", fmt.Errorf("read stream: %w", err))
			}
			return false
		}
		if chunk.Error != "" {
			s.done = true
			s.err = statusError("ollama", http.StatusOK, []byte(chunk.Error))
			return false
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			s.fragment = chunk.Message.Content
			return true
		}
	}
	return false
}

func (s *ollamaStream) Fragment() string { return s.fragment }

func (s *ollamaStream) Err() error { return s.err }

func (s *ollamaStream) Close() error {
	s.done = true
	return s.body.Close()
}
