package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/adapter/session"
	"ragchat/internal/domain"
)

func TestREPLEndsOnExit(t *testing.T) {
	var asked []string
	ask := func(_ context.Context, id, q string) (string, error) {
		asked = append(asked, id+":"+q)
		return "ok", nil
	}

	in := strings.NewReader("first\n\n  second  \nexit\nnever\n")
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), in, &out, "s1", ask))

	assert.Equal(t, []string{"s1:first", "s1:second"}, asked)
}

func TestREPLEndsOnEOF(t *testing.T) {
	calls := 0
	ask := func(context.Context, string, string) (string, error) {
		calls++
		return "", nil
	}
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), strings.NewReader("only question"), &out, "s", ask))
	assert.Equal(t, 1, calls)
}

func TestREPLSurvivesBackendOutage(t *testing.T) {
	calls := 0
	ask := func(context.Context, string, string) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("ollama: %w", domain.ErrBackendUnavailable)
		}
		return "fine", nil
	}

	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), strings.NewReader("a\nb\nexit\n"), &out, "s", ask))
	assert.Equal(t, 2, calls)
	assert.Contains(t, out.String(), "Unable to answer right now")
}

func TestREPLStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	ask := func(context.Context, string, string) (string, error) { return "", boom }

	var out bytes.Buffer
	err := repl(context.Background(), strings.NewReader("a\nb\n"), &out, "s", ask)
	assert.ErrorIs(t, err, boom)
}

func TestRestoreSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	store := session.NewFileStore(dir, 2, nil)
	var out bytes.Buffer

	err := restoreSession(store, "bad", false, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionRestore)
	assert.Contains(t, err.Error(), "--reset-corrupt")

	require.NoError(t, restoreSession(store, "bad", true, &out))
	assert.FileExists(t, filepath.Join(dir, "bad.json.corrupt"))

	sess, err := store.Get("bad")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
}

func TestSpeaker(t *testing.T) {
	assert.Equal(t, "Human", speaker(domain.RoleUser))
	assert.Equal(t, "AI", speaker(domain.RoleAssistant))
}
