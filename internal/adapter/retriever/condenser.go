package retriever

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/port"
)

const condensePrompt = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

// Condenser rewrites a follow-up question into one that can be retrieved
// without the conversation around it.
type Condenser struct {
	llm    port.LLM
	logger *log.Logger
}

func NewCondenser(llm port.LLM, l *log.Logger) *Condenser {
	if l == nil {
		l = logger.Discard()
	}
	return &Condenser{llm: llm, logger: l}
}

// Condense returns the standalone question. Without history, or when the
// model fails or answers with nothing, the question comes back unchanged.
func (c *Condenser) Condense(ctx context.Context, history []domain.Turn, question string) string {
	if c.llm == nil || len(history) == 0 {
		return question
	}

	msgs := make([]port.Message, 0, len(history)+2)
	msgs = append(msgs, port.Message{Role: port.MessageSystem, Content: condensePrompt})
	msgs = append(msgs, HistoryMessages(history)...)
	msgs = append(msgs, port.Message{Role: port.MessageUser, Content: question})

	response, err := c.llm.Generate(ctx, msgs)
	if err != nil {
		c.logger.Warn("question condensing failed, using original", "err", err)
		return question
	}

	standalone := strings.TrimSpace(response)
	standalone = strings.Trim(standalone, `"`)
	if standalone == "" {
		return question
	}
	c.logger.Debug("condensed question", "original", question, "standalone", standalone)
	return standalone
}

// HistoryMessages converts session turns to chat messages.
func HistoryMessages(history []domain.Turn) []port.Message {
	msgs := make([]port.Message, 0, len(history))
	for _, t := range history {
		role := port.MessageUser
		if t.Role == domain.RoleAssistant {
			role = port.MessageAssistant
		}
		msgs = append(msgs, port.Message{Role: role, Content: t.Content})
	}
	return msgs
}
