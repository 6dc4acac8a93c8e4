package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/adapter/session"
	"ragchat/internal/domain"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved session ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := session.NewFileStore(GetConfig().Session.Dir, 0, Logger("session"))
		ids, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintf(out, "No sessions in %s\n", store.Dir())
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the turns of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := session.NewFileStore(GetConfig().Session.Dir, 0, Logger("session"))
		sess, err := store.Get(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sess.Turns) == 0 {
			fmt.Fprintf(out, "Session %s is empty.\n", sess.ID)
			return nil
		}
		for _, t := range sess.Turns {
			fmt.Fprintf(out, "%s: %s\n", speaker(t.Role), strings.TrimSpace(t.Content))
		}
		return nil
	},
}

func speaker(r domain.Role) string {
	if r == domain.RoleUser {
		return "Human"
	}
	return "AI"
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
}
