package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
	"ragchat/internal/port"
)

var (
	_ port.LLM            = (*OpenAILLM)(nil)
	_ port.ToolCallingLLM = (*OpenAILLM)(nil)
)

const DefaultOpenAIModel = openai.GPT4oMini

// OpenAILLM uses the chat completions API of OpenAI or a compatible server.
type OpenAILLM struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAILLM(cfg Config) (*OpenAILLM, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, &domain.ConfigError{Key: cfg.APIKeyEnv, Reason: "API key not set"}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAILLM{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (l *OpenAILLM) ModelName() string { return l.model }

func (l *OpenAILLM) request(messages []port.Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	}
}

func (l *OpenAILLM) Generate(ctx context.Context, messages []port.Message) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, l.request(messages))
	if err != nil {
		return "", openAIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", statusError("openai", http.StatusOK, []byte("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) ChatWithTools(ctx context.Context, messages []port.Message, tools []port.ToolSpec) (port.Message, error) {
	req := l.request(messages)
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return port.Message{}, openAIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return port.Message{}, statusError("openai", http.StatusOK, []byte("no choices in response"))
	}

	choice := resp.Choices[0].Message
	msg := port.Message{Role: port.MessageAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, port.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg, nil
}

func (l *OpenAILLM) Stream(ctx context.Context, messages []port.Message) (port.TokenStream, error) {
	req := l.request(messages)
	req.Stream = true

	stream, err := l.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, openAIError(ctx, err)
	}
	return &openAIStream{ctx: ctx, stream: stream}, nil
}

func toOpenAIMessages(messages []port.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == port.MessageTool {
			om.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out[i] = om
	}
	return out
}

type openAIStream struct {
	ctx      context.Context
	stream   *openai.ChatCompletionStream
	fragment string
	err      error
	done     bool
}

func (s *openAIStream) Next() bool {
	for !s.done {
		resp, err := s.stream.Recv()
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = openAIError(s.ctx, err)
			}
			return false
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			s.fragment = content
			return true
		}
	}
	return false
}

func (s *openAIStream) Fragment() string { return s.fragment }

func (s *openAIStream) Err() error { return s.err }

func (s *openAIStream) Close() error {
	s.done = true
	return s.stream.Close()
}
