package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/adapter/session"
	"ragchat/internal/domain"
	"ragchat/internal/port"
)

type fakeRetriever struct {
	passages []domain.Passage
	err      error
	queries  []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]domain.Passage, error) {
	f.queries = append(f.queries, query)
	return f.passages, f.err
}

// fakeLLM replays scripted replies. Generate and Stream pop from replies;
// ChatWithTools pops from toolReplies.
type fakeLLM struct {
	mu          sync.Mutex
	replies     []string
	toolReplies []port.Message
	err         error
	calls       [][]port.Message
}

func (f *fakeLLM) next() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeLLM) record(msgs []port.Message) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]port.Message(nil), msgs...))
	f.mu.Unlock()
}

func (f *fakeLLM) Generate(_ context.Context, msgs []port.Message) (string, error) {
	f.record(msgs)
	return f.next()
}

func (f *fakeLLM) Stream(_ context.Context, msgs []port.Message) (port.TokenStream, error) {
	f.record(msgs)
	reply, err := f.next()
	if err != nil {
		return nil, err
	}
	return &sliceStream{parts: strings.SplitAfter(reply, " ")}, nil
}

func (f *fakeLLM) ChatWithTools(_ context.Context, msgs []port.Message, _ []port.ToolSpec) (port.Message, error) {
	f.record(msgs)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return port.Message{}, f.err
	}
	if len(f.toolReplies) == 0 {
		return port.Message{}, errors.New("no scripted tool reply")
	}
	m := f.toolReplies[0]
	f.toolReplies = f.toolReplies[1:]
	return m, nil
}

func (f *fakeLLM) ModelName() string { return "fake" }

type sliceStream struct {
	parts []string
	cur   string
}

func (s *sliceStream) Next() bool {
	if len(s.parts) == 0 {
		return false
	}
	s.cur, s.parts = s.parts[0], s.parts[1:]
	return true
}

func (s *sliceStream) Fragment() string { return s.cur }
func (s *sliceStream) Err() error       { return nil }

func (s *sliceStream) Close() error {
	s.parts = nil
	return nil
}

func TestChatTurnAppendsAndSaves(t *testing.T) {
	dir := t.TempDir()
	sessions := session.NewFileStore(dir, 2, nil)
	r := &fakeRetriever{passages: []domain.Passage{{Text: "The capital of France is Paris.", Source: "geo.md", Score: 0.9}}}
	model := &fakeLLM{replies: []string{"Paris."}}

	u := NewChatUseCase(r, sessions, model, ChatOptions{TopK: 4, Save: true}, nil)
	res, err := u.Ask(context.Background(), "s1", "What is the capital of France?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", res.Answer)
	assert.Len(t, res.Passages, 1)

	require.Len(t, model.calls, 1)
	prompt := model.calls[0][1].Content
	assert.Contains(t, prompt, "The capital of France is Paris.")
	assert.Contains(t, prompt, "User question: What is the capital of France?")
	assert.Equal(t, DefaultSystemPrompt, model.calls[0][0].Content)

	restored, err := session.NewFileStore(dir, 2, nil).Get("s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "What is the capital of France?"},
		{Role: domain.RoleAssistant, Content: "Paris."},
	}, restored.Turns)
}

func TestChatStreamsFragments(t *testing.T) {
	sessions := session.NewFileStore(t.TempDir(), 2, nil)
	model := &fakeLLM{replies: []string{"one two three"}}
	u := NewChatUseCase(&fakeRetriever{}, sessions, model, ChatOptions{}, nil)

	var got []string
	res, err := u.Ask(context.Background(), "s", "count", func(f string) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two ", "three"}, got)
	assert.Equal(t, "one two three", res.Answer)
}

func TestChatCondensesFollowUps(t *testing.T) {
	sessions := session.NewFileStore(t.TempDir(), 2, nil)
	require.NoError(t, sessions.Append("s", domain.RoleUser, "Who wrote Dune?"))
	require.NoError(t, sessions.Append("s", domain.RoleAssistant, "Frank Herbert."))

	r := &fakeRetriever{}
	model := &fakeLLM{replies: []string{"When was Dune by Frank Herbert published?", "1965."}}
	u := NewChatUseCase(r, sessions, model, ChatOptions{CondenseQuestion: true}, nil)

	res, err := u.Ask(context.Background(), "s", "When was it published?", nil)
	require.NoError(t, err)
	assert.Equal(t, "1965.", res.Answer)
	assert.Equal(t, []string{"When was Dune by Frank Herbert published?"}, r.queries)
	assert.Contains(t, model.calls[1][1].Content, "Human: Who wrote Dune?\nAI: Frank Herbert.")
}

func TestChatHistoryIsBounded(t *testing.T) {
	sessions := session.NewFileStore(t.TempDir(), 2, nil)
	model := &fakeLLM{replies: []string{"a1", "a2", "a3"}}
	u := NewChatUseCase(&fakeRetriever{}, sessions, model, ChatOptions{}, nil)

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := u.Ask(context.Background(), "s", q, nil)
		require.NoError(t, err)
	}

	sess, err := sessions.Get("s")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	assert.Equal(t, "q2", sess.Turns[0].Content)
}

func TestChatFailureLeavesSessionUntouched(t *testing.T) {
	sessions := session.NewFileStore(t.TempDir(), 2, nil)
	model := &fakeLLM{err: domain.ErrBackendUnavailable}
	u := NewChatUseCase(&fakeRetriever{}, sessions, model, ChatOptions{}, nil)

	_, err := u.Ask(context.Background(), "s", "hello?", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))

	sess, err := sessions.Get("s")
	require.NoError(t, err)
	assert.Empty(t, sess.Turns)
}

func TestChatRetrievalFailureSurfaces(t *testing.T) {
	sessions := session.NewFileStore(t.TempDir(), 2, nil)
	r := &fakeRetriever{err: domain.ErrEmbedding}
	u := NewChatUseCase(r, sessions, &fakeLLM{replies: []string{"x"}}, ChatOptions{}, nil)

	_, err := u.Ask(context.Background(), "s", "hello?", nil)
	assert.True(t, errors.Is(err, domain.ErrEmbedding))
}
