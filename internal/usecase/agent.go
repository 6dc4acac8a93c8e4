package usecase

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/adapter/tool"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

const DefaultMaxIterations = 4

type AgentOptions struct {
	MaxIterations int
	SystemPrompt  string
	Save          bool
}

// ToolInvocation records one tool call made during an agent turn.
type ToolInvocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	Error     string `json:"error,omitempty"`
}

type AgentResult struct {
	Answer     string           `json:"answer"`
	Calls      []ToolInvocation `json:"calls,omitempty"`
	Iterations int              `json:"iterations"`
	// Exhausted is set when the model still wanted tools after the last
	// allowed iteration.
	Exhausted bool `json:"exhausted,omitempty"`
}

// AgentUseCase lets the model call tools before answering.
type AgentUseCase struct {
	llm      port.ToolCallingLLM
	tools    *tool.Registry
	sessions port.SessionStore
	opts     AgentOptions
	locks    *sessionLocks
	logger   *log.Logger
}

func NewAgentUseCase(
	model port.ToolCallingLLM,
	tools *tool.Registry,
	sessions port.SessionStore,
	opts AgentOptions,
	l *log.Logger,
) *AgentUseCase {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultAgentPrompt
	}
	if l == nil {
		l = logger.Discard()
	}
	return &AgentUseCase{
		llm:      model,
		tools:    tools,
		sessions: sessions,
		opts:     opts,
		locks:    newSessionLocks(),
		logger:   l,
	}
}

// Ask runs the tool loop for one question. A tool error is reported back to
// the model as the tool's output rather than ending the turn.
func (u *AgentUseCase) Ask(ctx context.Context, sessionID, question string) (*AgentResult, error) {
	unlock := u.locks.lock(sessionID)
	defer unlock()

	sess, err := u.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]port.Message, 0, len(sess.Turns)+2)
	messages = append(messages, port.Message{Role: port.MessageSystem, Content: u.opts.SystemPrompt})
	messages = append(messages, retriever.HistoryMessages(sess.Turns)...)
	messages = append(messages, port.Message{Role: port.MessageUser, Content: question})

	specs := u.tools.Specs()
	result := &AgentResult{}

	for result.Iterations < u.opts.MaxIterations {
		result.Iterations++

		reply, err := u.llm.ChatWithTools(ctx, messages, specs)
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", result.Iterations, err)
		}
		messages = append(messages, reply)
		result.Answer = reply.Content

		if len(reply.ToolCalls) == 0 {
			break
		}
		if result.Iterations == u.opts.MaxIterations {
			result.Exhausted = true
			break
		}

		for _, call := range reply.ToolCalls {
			inv := ToolInvocation{Name: call.Name, Arguments: string(call.Arguments)}
			out, err := u.tools.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				inv.Error = err.Error()
				out = "error: " + err.Error()
			}
			inv.Result = out
			result.Calls = append(result.Calls, inv)
			u.logger.Debug("tool call", "tool", call.Name, "args", string(call.Arguments), "err", inv.Error)

			messages = append(messages, port.Message{
				Role:       port.MessageTool,
				Content:    out,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	if result.Exhausted && result.Answer == "" {
		result.Answer = fmt.Sprintf("I could not finish within %d steps.", u.opts.MaxIterations)
	}

	if err := u.sessions.Append(sessionID, domain.RoleUser, question); err != nil {
		return nil, err
	}
	if err := u.sessions.Append(sessionID, domain.RoleAssistant, result.Answer); err != nil {
		return nil, err
	}
	if u.opts.Save {
		if err := u.sessions.Save(sessionID); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	return result, nil
}
