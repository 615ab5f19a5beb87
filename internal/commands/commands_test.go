// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/export"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/ratelimit"
	"github.com/jeranaias/rigrun-stream/internal/session"
	"github.com/jeranaias/rigrun-stream/internal/storage"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeSession struct {
	state     session.State
	retryErr  error
	retries   int
	retryOpts session.SendOptions
	cleared   bool
	cancelled bool
	inFlight  bool
}

func (f *fakeSession) SessionID() string    { return "sess-1" }
func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) ClearMessages()       { f.cleared = true }

func (f *fakeSession) Cancel() bool {
	f.cancelled = true
	return f.inFlight
}

func (f *fakeSession) RetryLastMessage(_ context.Context, opts session.SendOptions) error {
	f.retries++
	f.retryOpts = opts
	return f.retryErr
}

type fakeStatus struct{ st model.ModelStatus }

func (f fakeStatus) Status() model.ModelStatus { return f.st }

func newContext(t *testing.T) (*Context, *fakeSession, *storage.Store) {
	t.Helper()
	store := storage.New(storage.NewMemory(), zerolog.Nop()).
		WithDefaultSelection(model.Selection{ProviderID: model.ProviderLocal, ModelID: "qwen2.5"})
	fs := &fakeSession{}
	return &Context{
		Ctx:     context.Background(),
		Session: fs,
		Store:   store,
		Status:  fakeStatus{st: model.ModelStatus{State: model.StateLoaded}},
		Options: func() session.SendOptions { return session.SendOptions{Persona: "pirate"} },
	}, fs, store
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestIsCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/help", true},
		{"/model local", true},
		{"  /help", true},
		{"hello", false},
		{"hello /help", false},
		{"", false},
		{"/", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsCommand(tc.input), tc.input)
	}
}

func TestParse(t *testing.T) {
	reg := NewRegistry()

	res := reg.Parse(`/MODEL openrouter "meta/llama 3"`)
	require.True(t, res.IsCommand)
	require.NotNil(t, res.Command)
	assert.Equal(t, "/model", res.Command.Name)
	assert.Equal(t, []string{"openrouter", "meta/llama 3"}, res.Args)

	res = reg.Parse("/q")
	require.NotNil(t, res.Command)
	assert.Equal(t, "/quit", res.Command.Name)

	res = reg.Parse("plain text")
	assert.False(t, res.IsCommand)
	assert.Nil(t, res.Command)

	res = reg.Parse("/nope")
	assert.True(t, res.IsCommand)
	assert.Nil(t, res.Command)
}

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"/a b c", []string{"/a", "b", "c"}},
		{`/a "b c"`, []string{"/a", "b c"}},
		{`/a 'b "c"'`, []string{"/a", `b "c"`}},
		{`/a "say \"hi\""`, []string{"/a", `say "hi"`}},
		{`/a ""`, []string{"/a", ""}},
		{"   ", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, splitCommandLine(tc.input), tc.input)
	}
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func TestExecuteUnknownCommand(t *testing.T) {
	reg := NewRegistry()
	ctx, _, _ := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/bogus"))
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, ErrUnknownCommand)
	assert.Contains(t, out.Err.Error(), "/bogus")
}

func TestRetryPassesOptions(t *testing.T) {
	reg := NewRegistry()
	ctx, fs, _ := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/retry"))
	require.NoError(t, out.Err)
	assert.True(t, out.Submitted)
	assert.Equal(t, 1, fs.retries)
	assert.Equal(t, "pirate", fs.retryOpts.Persona)
}

func TestRetryRejected(t *testing.T) {
	reg := NewRegistry()
	ctx, fs, _ := newContext(t)
	fs.retryErr = session.ErrRateLimited

	out := reg.Execute(ctx, reg.Parse("/retry"))
	assert.ErrorIs(t, out.Err, session.ErrRateLimited)
	assert.False(t, out.Submitted)
}

func TestClearAndCancel(t *testing.T) {
	reg := NewRegistry()
	ctx, fs, _ := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/clear"))
	assert.True(t, fs.cleared)
	assert.Equal(t, "Conversation cleared.", out.Output)

	out = reg.Execute(ctx, reg.Parse("/cancel"))
	assert.True(t, fs.cancelled)
	assert.Equal(t, "Nothing to cancel.", out.Output)

	fs.inFlight = true
	out = reg.Execute(ctx, reg.Parse("/stop"))
	assert.Equal(t, "Request cancelled.", out.Output)
}

func TestModelShowAndSwitch(t *testing.T) {
	reg := NewRegistry()
	ctx, _, store := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/model"))
	assert.Equal(t, "Current model: local/qwen2.5", out.Output)

	var seen []model.Selection
	store.SubscribeSelection(func(sel model.Selection) { seen = append(seen, sel) })

	out = reg.Execute(ctx, reg.Parse("/model OpenRouter auto"))
	require.NoError(t, out.Err)
	assert.Equal(t, "Switched to openrouter/auto", out.Output)
	assert.Equal(t, model.Selection{ProviderID: "openrouter", ModelID: "auto"}, store.CurrentSelection())
	require.Len(t, seen, 1)
}

func TestMemoryShowAndClear(t *testing.T) {
	reg := NewRegistry()
	ctx, _, store := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/memory"))
	assert.Equal(t, "No memory stored for this session.", out.Output)

	require.NoError(t, store.SaveMemory(context.Background(), "sess-1", model.MemoryRecord{Token: "tok-123", Chunks: []string{"a", "b"}}))
	out = reg.Execute(ctx, reg.Parse("/memory"))
	assert.Equal(t, "Memory token: tok-123 (2 chunks)", out.Output)

	out = reg.Execute(ctx, reg.Parse("/memory clear"))
	assert.Equal(t, "Memory cleared.", out.Output)
	rec, err := store.Memory(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, rec.IsEmpty())

	out = reg.Execute(ctx, reg.Parse("/memory wipe"))
	assert.Error(t, out.Err)
}

func TestExportWritesFile(t *testing.T) {
	reg := NewRegistry()
	ctx, fs, _ := newContext(t)
	dir := t.TempDir()

	out := reg.Execute(ctx, reg.Parse("/export json "+dir))
	assert.ErrorIs(t, out.Err, export.ErrEmptyTranscript)

	fs.state.Messages = []model.Message{
		model.NewUserMessage("hi"),
		model.NewAssistantMessage("hello", model.Metadata{}),
	}
	out = reg.Execute(ctx, reg.Parse("/export json "+dir))
	require.NoError(t, out.Err)
	require.True(t, strings.HasPrefix(out.Output, "Exported to "))

	path := strings.TrimPrefix(out.Output, "Exported to ")
	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionId": "sess-1"`)
	assert.Contains(t, string(data), "qwen2.5")

	out = reg.Execute(ctx, reg.Parse("/export pdf"))
	assert.Error(t, out.Err)
}

func TestQuit(t *testing.T) {
	reg := NewRegistry()
	ctx, _, _ := newContext(t)
	assert.True(t, reg.Execute(ctx, reg.Parse("/exit")).Quit)
}

func TestHelpListsEveryCommand(t *testing.T) {
	reg := NewRegistry()
	ctx, _, _ := newContext(t)

	out := reg.Execute(ctx, reg.Parse("/help"))
	for _, cmd := range reg.All() {
		assert.Contains(t, out.Output, cmd.Description)
	}
	assert.Contains(t, out.Output, "/model [<provider> [model]]")
}

func TestFormatStatus(t *testing.T) {
	st := session.State{
		Phase:        session.PhaseIndicator,
		RateLimit:    ratelimit.State{Active: true, RemainingSeconds: 42},
		ProviderBusy: true,
		Connection:   offline.StatusOnline,
	}
	ms := model.ModelStatus{State: model.StateLoaded, Message: "warm"}
	out := FormatStatus(model.Selection{ProviderID: "local", ModelID: "m"}, ms, st, "sess-9")

	assert.Contains(t, out, "Model:      local/m")
	assert.Contains(t, out, "State:      LOADED (warm), busy")
	assert.Contains(t, out, "Phase:      indicator")
	assert.Contains(t, out, "Cooldown:   42s remaining")
	assert.Contains(t, out, "Connection: online")
	assert.Contains(t, out, "Session:    sess-9")

	out = FormatStatus(model.Selection{ProviderID: "local"}, model.ModelStatus{}, session.State{}, "")
	assert.Contains(t, out, "State:      unknown")
	assert.Contains(t, out, "Cooldown:   none")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "abcdefg...", Preview("abcdefghijklmnop", 10))
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestCompleter(t *testing.T) {
	c := NewCompleter(NewRegistry())

	assert.Equal(t, []string{"/memory", "/model"}, c.Complete("/m"))
	assert.Equal(t, []string{"/retry"}, c.Complete("/re"))
	assert.Equal(t, []string{"/model local"}, c.Complete("/model lo"))
	assert.Equal(t, []string{"/model local", "/model openrouter"}, c.Complete("/model "))
	assert.Nil(t, c.Complete("/model local x"))
	assert.Nil(t, c.Complete("hello"))
	assert.Equal(t, []string{"/export"}, c.Complete("/ex"))
	assert.Equal(t, []string{"/exit"}, c.Complete("/exi"))
	assert.Equal(t, []string{"/export json"}, c.Complete("/export j"))
}
