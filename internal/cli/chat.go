package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ragchat/internal/adapter/session"
	"ragchat/internal/adapter/tool"
	"ragchat/internal/domain"
	"ragchat/internal/usecase"
)

var (
	chatSession      string
	chatAgent        bool
	chatNoSave       bool
	chatResetCorrupt bool
)

const exitCommand = "exit"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat over the indexed documents",
	Long: `Read one question per line and answer it with the retrieved context and
the session history. Type "exit" (or send EOF) to quit.

Sessions are saved to the sessions directory and resumed by id.

Examples:
  ragchat chat                          # New session with a random id
  ragchat chat --session onboarding     # Resume a named session
  ragchat chat --agent                  # Let the model call tools`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id (default is a new random id)")
	chatCmd.Flags().BoolVar(&chatAgent, "agent", false, "answer with the tool-calling agent")
	chatCmd.Flags().BoolVar(&chatNoSave, "no-save", false, "do not persist the session")
	chatCmd.Flags().BoolVar(&chatResetCorrupt, "reset-corrupt", false, "move an unreadable session file aside and start fresh")
}

// asker answers one line of the REPL.
type asker func(ctx context.Context, sessionID, question string) (string, error)

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	id := chatSession
	if id == "" {
		id = uuid.NewString()
	}
	if err := session.ValidateID(id); err != nil {
		return err
	}

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := restoreSession(svc.sessions, id, chatResetCorrupt, out); err != nil {
		return err
	}

	model, err := newLLM(cfg)
	if err != nil {
		return err
	}
	save := cfg.Session.Save && !chatNoSave

	var ask asker
	if chatAgent {
		tools := tool.NewRegistry(
			tool.Add{},
			tool.Multiply{},
			tool.NewSearchDocuments(svc.retriever, cfg.Retrieve.TopK),
		)
		agent := usecase.NewAgentUseCase(model, tools, svc.sessions, usecase.AgentOptions{
			MaxIterations: cfg.Agent.MaxIterations,
			Save:          save,
		}, Logger("agent"))
		ask = func(ctx context.Context, sessionID, question string) (string, error) {
			res, err := agent.Ask(ctx, sessionID, question)
			if err != nil {
				return "", err
			}
			for _, call := range res.Calls {
				fmt.Fprintf(cmd.ErrOrStderr(), "  tool %s(%s) -> %s\n", call.Name, call.Arguments, firstNonEmpty(call.Error, call.Result))
			}
			fmt.Fprintln(out, res.Answer)
			return res.Answer, nil
		}
	} else {
		chat := usecase.NewChatUseCase(svc.retriever, svc.sessions, model, usecase.ChatOptions{
			TopK:             cfg.Retrieve.TopK,
			SystemPrompt:     cfg.LLM.SystemPrompt,
			CondenseQuestion: cfg.Chat.CondenseQuestion,
			Save:             save,
		}, Logger("chat"))
		ask = func(ctx context.Context, sessionID, question string) (string, error) {
			res, err := chat.Ask(ctx, sessionID, question, func(fragment string) {
				fmt.Fprint(out, fragment)
			})
			if err != nil {
				return "", err
			}
			fmt.Fprintln(out)
			return res.Answer, nil
		}
	}

	fmt.Fprintf(out, "Session %s (model %s). Type %q to quit.\n", id, model.ModelName(), exitCommand)
	return repl(ctx, cmd.InOrStdin(), out, id, ask)
}

// restoreSession loads id so that an unreadable file is reported before the
// first question. With reset the bad file is moved aside instead.
func restoreSession(store *session.FileStore, id string, reset bool, out io.Writer) error {
	sess, err := store.Get(id)
	if err == nil {
		if n := len(sess.Turns); n > 0 {
			fmt.Fprintf(out, "Resumed session with %d turns.\n", n)
		}
		return nil
	}
	if !errors.Is(err, domain.ErrSessionRestore) || !reset {
		return fmt.Errorf("%w (use --reset-corrupt to start over)", err)
	}

	moved, err := store.ResetCorrupt(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Moved unreadable session to %s.\n", moved)
	return nil
}

// repl reads one question per line until "exit" or EOF. A backend outage
// is reported and the loop continues; other errors end it.
func repl(ctx context.Context, in io.Reader, out io.Writer, sessionID string, ask asker) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == exitCommand {
			return nil
		}
		if line == "" {
			continue
		}

		if _, err := ask(ctx, sessionID, line); err != nil {
			switch {
			case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, domain.ErrEmbedding):
				fmt.Fprintf(out, "\nUnable to answer right now: %v\n", err)
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return err
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
