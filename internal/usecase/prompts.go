package usecase

import (
	"fmt"
	"strings"

	"ragchat/internal/adapter/retriever"
	"ragchat/internal/domain"
)

const DefaultSystemPrompt = "You are a helpful assistant. Answer the following questions accurately, " +
	"considering the history of the conversation, and the context provided."

const DefaultAgentPrompt = "You are a helpful assistant. Answer the user's question as best as you can. " +
	"Use the tools available to you."

// questionPrompt renders the user message of a chat turn.
func questionPrompt(passages []domain.Passage, history []domain.Turn, question string) string {
	ctx := retriever.ContextText(passages)
	if ctx == "" {
		ctx = retriever.NoDocumentsFound
	}
	hist := formatHistory(history)
	if hist == "" {
		hist = "(none)"
	}
	return fmt.Sprintf("Context:\n%s\n\nChat history:\n%s\n\nUser question: %s", ctx, hist, question)
}

func formatHistory(history []domain.Turn) string {
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		if t.Role == domain.RoleAssistant {
			b.WriteString("AI: ")
		} else {
			b.WriteString("Human: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
