package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestGetCreatesEmptySession(t *testing.T) {
	s := NewFileStore(t.TempDir(), 2, nil)

	sess, err := s.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", sess.ID)
	assert.Empty(t, sess.Turns)
}

func TestAppendTrimsToExchanges(t *testing.T) {
	s := NewFileStore(t.TempDir(), 2, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append("s1", domain.RoleUser, "q"+string(rune('0'+i))))
		require.NoError(t, s.Append("s1", domain.RoleAssistant, "a"+string(rune('0'+i))))
	}

	sess, err := s.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Content: "q1"}, sess.Turns[0])
	assert.Equal(t, domain.Turn{Role: domain.RoleAssistant, Content: "a2"}, sess.Turns[3])
}

func TestTrimKeepsMostRecent(t *testing.T) {
	tests := []struct {
		name  string
		turns int
		max   int
		want  int
	}{
		{"under limit", 2, 5, 2},
		{"at limit", 4, 4, 4},
		{"over limit", 7, 3, 3},
		{"unbounded", 6, 0, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFileStore(t.TempDir(), 0, nil)
			for i := 0; i < tt.turns; i++ {
				require.NoError(t, s.Append("t", domain.RoleUser, string(rune('a'+i))))
			}
			require.NoError(t, s.Trim("t", tt.max))

			sess, err := s.Get("t")
			require.NoError(t, err)
			require.Len(t, sess.Turns, tt.want)
			assert.Equal(t, string(rune('a'+tt.turns-1)), sess.Turns[len(sess.Turns)-1].Content)
		})
	}
}

func TestSaveAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 10, nil)

	require.NoError(t, s.Append("room", domain.RoleUser, "hello"))
	require.NoError(t, s.Append("room", domain.RoleAssistant, "hi there"))
	require.NoError(t, s.Append("room", domain.RoleUser, "and again"))
	require.NoError(t, s.Save("room"))

	data, err := os.ReadFile(filepath.Join(dir, "room.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role": "human"`)
	assert.Contains(t, string(data), `"role": "ai"`)

	restored := NewFileStore(dir, 10, nil)
	sess, err := restored.Get("room")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "hi there"},
		{Role: domain.RoleUser, Content: "and again"},
	}, sess.Turns)
}

func TestSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 1, nil)

	require.NoError(t, s.Append("x", domain.RoleUser, "one"))
	require.NoError(t, s.Save("x"))
	require.NoError(t, s.Append("x", domain.RoleAssistant, "two"))
	require.NoError(t, s.Append("x", domain.RoleUser, "three"))
	require.NoError(t, s.Save("x"))

	sess, err := NewFileStore(dir, 1, nil).Get("x")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{
		{Role: domain.RoleAssistant, Content: "two"},
		{Role: domain.RoleUser, Content: "three"},
	}, sess.Turns)
}

func TestSaveUnknownSessionIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 2, nil)

	require.NoError(t, s.Save("never-seen"))
	_, err := os.Stat(filepath.Join(dir, "never-seen.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCorruptSessionSurfacesError(t *testing.T) {
	tests := map[string]string{
		"bad json":     "{not json",
		"unknown role": `[{"role":"robot","content":"x"}]`,
		"wrong shape":  `{"role":"human"}`,
		"null":         "null",
		"empty file":   "",
		"string":       `"hello"`,
		"null turn":    `[null]`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(content), 0o644))

			s := NewFileStore(dir, 2, nil)
			_, err := s.Get("bad")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrSessionRestore))

			err = s.Append("bad", domain.RoleUser, "hi")
			assert.True(t, errors.Is(err, domain.ErrSessionRestore))
		})
	}
}

func TestEmptyArrayRestoresEmptySession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.json"), []byte(" []\n"), 0o644))

	s := NewFileStore(dir, 2, nil)
	sess, err := s.Get("blank")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
}

func TestResetCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	s := NewFileStore(dir, 2, nil)
	_, err := s.Get("bad")
	require.Error(t, err)

	moved, err := s.ResetCorrupt("bad")
	require.NoError(t, err)
	assert.Equal(t, path+".corrupt", moved)

	sess, err := s.Get("bad")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)

	moved, err = s.ResetCorrupt("absent")
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestInvalidIDs(t *testing.T) {
	s := NewFileStore(t.TempDir(), 2, nil)
	for _, id := range []string{"", "  ", "..", "a/b", `a\b`} {
		_, err := s.Get(id)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument), id)
	}
	assert.True(t, errors.Is(s.Append("ok", domain.Role("system"), "x"), domain.ErrInvalidArgument))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 2, nil)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"beta", "alpha"} {
		require.NoError(t, s.Append(id, domain.RoleUser, "hi"))
		require.NoError(t, s.Save(id))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewFileStore(t.TempDir(), 2, nil)
	require.NoError(t, s.Append("c", domain.RoleUser, "original"))

	sess, err := s.Get("c")
	require.NoError(t, err)
	sess.Turns[0].Content = "mutated"

	again, err := s.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Turns[0].Content)
}

func TestConcurrentAppends(t *testing.T) {
	s := NewFileStore(t.TempDir(), 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append("shared", domain.RoleUser, "x"))
		}()
	}
	wg.Wait()

	sess, err := s.Get("shared")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 20)
}
