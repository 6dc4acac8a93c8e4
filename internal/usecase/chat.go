package usecase

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"ragchat/internal/adapter/llm"
	"ragchat/internal/adapter/retriever"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

type ChatOptions struct {
	TopK             int
	SystemPrompt     string
	CondenseQuestion bool
	// Save persists the session after every turn.
	Save bool
}

type ChatResult struct {
	Answer string `json:"answer"`
	// Query is the question as sent to the retriever, after condensing.
	Query    string           `json:"query"`
	Passages []domain.Passage `json:"passages"`
}

// ChatUseCase answers one question per call with retrieved context and the
// session's history.
type ChatUseCase struct {
	retriever port.Retriever
	sessions  port.SessionStore
	llm       port.LLM
	condenser *retriever.Condenser
	opts      ChatOptions
	locks     *sessionLocks
	logger    *log.Logger
}

func NewChatUseCase(
	r port.Retriever,
	sessions port.SessionStore,
	model port.LLM,
	opts ChatOptions,
	l *log.Logger,
) *ChatUseCase {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if l == nil {
		l = logger.Discard()
	}
	u := &ChatUseCase{
		retriever: r,
		sessions:  sessions,
		llm:       model,
		opts:      opts,
		locks:     newSessionLocks(),
		logger:    l,
	}
	if opts.CondenseQuestion {
		u.condenser = retriever.NewCondenser(model, l)
	}
	return u
}

// Ask runs retrieve, generate, append and save for one turn. When
// onFragment is non-nil the reply is streamed through it as it arrives.
// Nothing is appended to the session unless generation succeeds.
func (u *ChatUseCase) Ask(ctx context.Context, sessionID, question string, onFragment func(string)) (*ChatResult, error) {
	unlock := u.locks.lock(sessionID)
	defer unlock()

	sess, err := u.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	query := question
	if u.condenser != nil {
		query = u.condenser.Condense(ctx, sess.Turns, question)
	}

	passages, err := u.retriever.Retrieve(ctx, query, u.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	messages := []port.Message{
		{Role: port.MessageSystem, Content: u.opts.SystemPrompt},
		{Role: port.MessageUser, Content: questionPrompt(passages, sess.Turns, question)},
	}

	answer, err := u.generate(ctx, messages, onFragment)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	if err := u.sessions.Append(sessionID, domain.RoleUser, question); err != nil {
		return nil, err
	}
	if err := u.sessions.Append(sessionID, domain.RoleAssistant, answer); err != nil {
		return nil, err
	}
	if u.opts.Save {
		if err := u.sessions.Save(sessionID); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}

	u.logger.Debug("chat turn", "session", sessionID, "passages", len(passages), "answer_len", len(answer))
	return &ChatResult{Answer: answer, Query: query, Passages: passages}, nil
}

func (u *ChatUseCase) generate(ctx context.Context, messages []port.Message, onFragment func(string)) (string, error) {
	if onFragment == nil {
		return u.llm.Generate(ctx, messages)
	}
	stream, err := u.llm.Stream(ctx, messages)
	if err != nil {
		return "", err
	}
	return llm.Collect(stream, onFragment)
}
