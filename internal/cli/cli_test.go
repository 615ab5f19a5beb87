// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/model"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/session"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// =============================================================================
// HELPERS
// =============================================================================

// isolate points the config directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("RIGRUN_STREAM_HOME", home)
	config.ResetGlobalForTesting()
	t.Cleanup(config.ResetGlobalForTesting)
	return home
}

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// decodeEnvelope parses a --json response, decoding Data into data.
func decodeEnvelope(t *testing.T, raw string, data any) JSONResponse {
	t.Helper()
	var env struct {
		JSONResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.JSONResponse
}

// =============================================================================
// COMMAND TREE
// =============================================================================

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "tui", "status", "memory", "settings", "model", "session", "config"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "url", "storage", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_UnknownFlagIsUsageError(t *testing.T) {
	isolate(t)
	_, err := run(t, "status", "--bogus")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("bad %s", "arg"), ExitUsageError},
		{"config", &ConfigError{Err: errors.New("broken")}, ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "x", Message: "y"}}, ExitConfigError},
		{"connection", errors.Wrap(&transport.Error{Kind: transport.KindConnection}, "create session"), ExitNetworkError},
		{"provider", &transport.Error{Kind: transport.KindProvider}, ExitGeneralError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

// =============================================================================
// CONFIG LOADING
// =============================================================================

func TestLoadConfig_FlagOverrides(t *testing.T) {
	home := isolate(t)

	cfg, err := LoadConfig(GlobalOptions{
		BackendURL: "http://localhost:9999/",
		Storage:    "file",
		LogLevel:   "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.Backend.URL)
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(home, "stream-state.json"), cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Same(t, cfg, config.Global())
}

func TestLoadConfig_InvalidStorageIsConfigError(t *testing.T) {
	isolate(t)
	_, err := LoadConfig(GlobalOptions{Storage: "floppy"})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCodeFor(err))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	home := isolate(t)
	_, err := LoadConfig(GlobalOptions{ConfigPath: filepath.Join(home, "nope.toml")})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCodeFor(err))
}

func TestControllerConfig_MapsTimings(t *testing.T) {
	cfg := config.Default()
	cfg.Timing.Debounce = config.D(100 * time.Millisecond)
	cfg.Providers.LocalTimeout = config.D(45 * time.Second)

	c := ControllerConfig(cfg)
	assert.Equal(t, 100*time.Millisecond, c.Debounce)
	assert.Equal(t, 45*time.Second, c.LocalTimeout)
	assert.Equal(t, session.DefaultRateLimitMessage, c.RateLimitMessage)
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func TestConfigCommand_InitGetPath(t *testing.T) {
	home := isolate(t)

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "stream.toml"), strings.TrimSpace(out))

	_, err = run(t, "config", "init")
	require.NoError(t, err)
	_, err = run(t, "config", "init")
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
	_, err = run(t, "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "config", "get", "timing.debounce")
	require.NoError(t, err)
	assert.Equal(t, "300ms", strings.TrimSpace(out))

	_, err = run(t, "config", "get", "timing.nope")
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
}

func TestConfigCommand_Show(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[backend]")
	assert.Contains(t, out, "debounce")
}

func TestPrintTOML_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTOML(&buf, "a = 1\n", false))
	assert.Equal(t, "a = 1\n", buf.String())
}

func TestConfigCommand_ShowFollowsColorSetting(t *testing.T) {
	isolate(t)
	t.Cleanup(func() { ForceColorsEnabled(false) })

	ForceColorsEnabled(true)
	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[", "highlighted output carries ANSI escapes")

	ForceColorsEnabled(false)
	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b[")
	assert.Equal(t, termenv.Ascii, GetColorProfile())
}

// =============================================================================
// SETTINGS, MODEL AND MEMORY COMMANDS
// =============================================================================

func TestSettingsCommand_SetShowReset(t *testing.T) {
	isolate(t)

	_, err := run(t, "--storage", "file", "settings", "set", "persona", "pirate")
	require.NoError(t, err)
	_, err = run(t, "--storage", "file", "settings", "set", "no-memory", "true")
	require.NoError(t, err)

	out, err := run(t, "--storage", "file", "settings", "show", "--json")
	require.NoError(t, err)
	var st storage.Settings
	env := decodeEnvelope(t, out, &st)
	assert.True(t, env.Success)
	assert.Equal(t, "pirate", st.Persona)
	assert.True(t, st.DisableAllMemoryRecall)
	assert.True(t, st.RenderMarkdown)

	_, err = run(t, "--storage", "file", "settings", "reset")
	require.NoError(t, err)
	out, err = run(t, "--storage", "file", "settings", "show", "--json")
	require.NoError(t, err)
	decodeEnvelope(t, out, &st)
	assert.Equal(t, storage.DefaultSettings(), st)
}

func TestApplySetting(t *testing.T) {
	st := storage.DefaultSettings()
	require.NoError(t, applySetting(&st, "system", "be brief"))
	require.NoError(t, applySetting(&st, "Markdown", "false"))
	require.NoError(t, applySetting(&st, "unload", "1"))
	assert.Equal(t, "be brief", st.SystemInstruction)
	assert.False(t, st.RenderMarkdown)
	assert.True(t, st.UnloadAfterCall)

	err := applySetting(&st, "unload", "maybe")
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
	err = applySetting(&st, "colour", "blue")
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
}

func TestModelCommand_ShowAndSwitch(t *testing.T) {
	isolate(t)

	out, err := run(t, "--storage", "file", "model")
	require.NoError(t, err)
	assert.Equal(t, "local", strings.TrimSpace(out))

	_, err = run(t, "--storage", "file", "model", "OpenRouter", "gpt-4o")
	require.NoError(t, err)

	out, err = run(t, "--storage", "file", "model")
	require.NoError(t, err)
	assert.Equal(t, "openrouter/gpt-4o", strings.TrimSpace(out))
}

func TestMemoryCommand_ShowListClear(t *testing.T) {
	home := isolate(t)

	kv, err := storage.Open(storage.Options{Backend: storage.BackendFile, Path: filepath.Join(home, "stream-state.json")})
	require.NoError(t, err)
	store := storage.New(kv, zerolog.Nop())
	require.NoError(t, store.SaveMemory(context.Background(), "s-1", model.MemoryRecord{Token: "tok", Chunks: []string{"a", "b"}}))
	require.NoError(t, store.Close())

	out, err := run(t, "--storage", "file", "memory", "list", "--json")
	require.NoError(t, err)
	var ids []string
	decodeEnvelope(t, out, &ids)
	assert.Equal(t, []string{"s-1"}, ids)

	out, err = run(t, "--storage", "file", "memory", "show", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "tok")
	assert.Contains(t, out, "1. a")

	_, err = run(t, "--storage", "file", "memory", "clear", "s-1")
	require.NoError(t, err)
	out, err = run(t, "--storage", "file", "memory", "show", "s-1", "--json")
	require.NoError(t, err)
	var data MemoryData
	decodeEnvelope(t, out, &data)
	assert.Equal(t, "s-1", data.SessionID)
	assert.Empty(t, data.Token)

	_, err = run(t, "--storage", "file", "memory", "show")
	assert.Equal(t, ExitUsageError, ExitCodeFor(err))
}

// =============================================================================
// BACKEND COMMANDS
// =============================================================================

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s-42"}`))
	})
	mux.HandleFunc("/api/session/s-42/documents", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"documents":[{"id":"d1","name":"notes.txt","size":2048}]}`))
	})
	mux.HandleFunc("/api/models/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "local", r.URL.Query().Get("providerId"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"providerId":"local","modelId":"","state":"loading","message":"warming up"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionCommand_NewAndDocs(t *testing.T) {
	isolate(t)
	srv := newBackend(t)

	out, err := run(t, "--url", srv.URL, "--storage", "memory", "session", "new")
	require.NoError(t, err)
	assert.Equal(t, "s-42", strings.TrimSpace(out))

	out, err = run(t, "--url", srv.URL, "--storage", "memory", "session", "docs", "s-42", "--json")
	require.NoError(t, err)
	var data DocumentsData
	decodeEnvelope(t, out, &data)
	require.Len(t, data.Documents, 1)
	assert.Equal(t, "notes.txt", data.Documents[0].Name)

	out, err = run(t, "--url", srv.URL, "--storage", "memory", "session", "docs", "s-42")
	require.NoError(t, err)
	assert.Contains(t, out, "2.0 KiB")
}

func TestStatusCommand_LocalFetchesStatus(t *testing.T) {
	isolate(t)
	srv := newBackend(t)

	out, err := run(t, "--url", srv.URL, "--storage", "memory", "status", "--json")
	require.NoError(t, err)
	var data StatusData
	env := decodeEnvelope(t, out, &data)
	assert.True(t, env.Success)
	assert.True(t, data.Online)
	assert.False(t, data.Synthesized)
	assert.Equal(t, model.StateLoading, data.Status.State)
	assert.Equal(t, "warming up", data.Status.Message)
}

func TestStatusCommand_Offline(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, err := run(t, "--url", url, "--storage", "memory", "status", "--json")
	require.NoError(t, err)
	var data StatusData
	decodeEnvelope(t, out, &data)
	assert.False(t, data.Online)
}

func TestCollectStatus_RemoteIsSynthesized(t *testing.T) {
	isolate(t)
	t.Setenv("RIGRUN_STREAM_PROVIDER", "openrouter")
	cfg, err := LoadConfig(GlobalOptions{Storage: "memory", LogLevel: "disabled"})
	require.NoError(t, err)
	app, err := NewApp(cfg, false)
	require.NoError(t, err)
	defer app.Close()

	data, err := collectStatus(context.Background(), app)
	require.NoError(t, err)
	assert.True(t, data.Synthesized)
	assert.Equal(t, model.StateIdle, data.Status.State)
	assert.Equal(t, "openrouter", data.Selection.ProviderID)
}

func TestStartSession_ConnectionFailureMarksOffline(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, err := LoadConfig(GlobalOptions{BackendURL: url, Storage: "memory", LogLevel: "disabled"})
	require.NoError(t, err)
	cfg.Backend.MaxRetries = 0
	app, err := NewApp(cfg, false)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.StartSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, ExitCodeFor(err))
	assert.Equal(t, offline.StatusOffline, app.Monitor.Status())
}

func TestStartSession_WiresController(t *testing.T) {
	isolate(t)
	srv := newBackend(t)

	cfg, err := LoadConfig(GlobalOptions{BackendURL: srv.URL, Storage: "memory", LogLevel: "disabled"})
	require.NoError(t, err)
	app, err := NewApp(cfg, false)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess, err := app.StartSession(ctx)
	require.NoError(t, err)
	defer sess.Stop()

	assert.Equal(t, "s-42", sess.ID)
	assert.Equal(t, "s-42", sess.Controller.SessionID())
	assert.Equal(t, offline.StatusOnline, app.Monitor.Status())
	assert.ErrorIs(t, sess.Controller.SendToAgent(ctx, "   ", session.SendOptions{}), session.ErrEmptyMessage)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func TestTranscript_PrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf, false, 80)

	user := model.NewUserMessage("hello")
	ind := model.NewIndicatorMessage("Searching")
	tr.Render([]model.Message{user, ind})
	tr.Render([]model.Message{user, ind})

	ind.Content = "Reading"
	tr.Render([]model.Message{user, ind})

	answer := model.NewAssistantMessage("hi there", model.Metadata{Model: "llama3", Cached: true})
	tr.Render([]model.Message{user, answer})
	tr.Render([]model.Message{user, answer})

	out := buf.String()
	assert.NotContains(t, out, "hello")
	assert.Equal(t, 1, strings.Count(out, "Searching"))
	assert.Equal(t, 1, strings.Count(out, "Reading"))
	assert.Equal(t, 1, strings.Count(out, "hi there"))
	assert.Contains(t, out, "(llama3, cached)")
}

func TestTranscript_ErrorAndReset(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(&buf, false, 80)

	msg := model.NewErrorMessage("provider exploded")
	tr.Render([]model.Message{msg})
	tr.Reset()
	tr.Render([]model.Message{msg})

	assert.Equal(t, 2, strings.Count(buf.String(), "[Error] provider exploded"))
}

func TestAnswerSummary(t *testing.T) {
	assert.Empty(t, answerSummary(model.Metadata{}))
	assert.Equal(t, "(m, 12 tokens)", answerSummary(model.Metadata{Model: "m", Usage: &model.Usage{TotalTokens: 12}}))
}

// fakeReplySource replays a fixed list of states, one per change.
type fakeReplySource struct {
	states  []session.State
	i       int
	changes chan struct{}
}

func (f *fakeReplySource) State() session.State {
	st := f.states[f.i]
	if f.i < len(f.states)-1 {
		f.i++
		f.changes <- struct{}{}
	}
	return st
}

func (f *fakeReplySource) Changes() <-chan struct{} { return f.changes }

func TestWaitForReply_StopsWhenSettled(t *testing.T) {
	user := model.NewUserMessage("q")
	ind := model.NewIndicatorMessage("Thinking...")
	answer := model.NewAssistantMessage("a", model.Metadata{})

	src := &fakeReplySource{
		changes: make(chan struct{}, 1),
		states: []session.State{
			{Messages: []model.Message{user}, Awaiting: true, Phase: session.PhaseStreaming},
			{Messages: []model.Message{user, ind}, Awaiting: true, Phase: session.PhaseIndicator},
			{Messages: []model.Message{user, ind}, Phase: session.PhaseSettling},
			{Messages: []model.Message{user, answer}, Phase: session.PhaseIdle},
		},
	}

	var buf bytes.Buffer
	waitForReply(context.Background(), src, NewTranscript(&buf, false, 80))
	assert.Contains(t, buf.String(), "Thinking...")
	assert.Contains(t, buf.String(), "Assistant:")
}

func TestWaitForReply_ReturnsOnCancel(t *testing.T) {
	src := &fakeReplySource{
		changes: make(chan struct{}, 1),
		states:  []session.State{{Awaiting: true, Phase: session.PhaseStreaming}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		waitForReply(ctx, src, NewTranscript(&bytes.Buffer{}, false, 80))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForReply did not return after cancel")
	}
}

func TestLastError(t *testing.T) {
	assert.NoError(t, lastError(session.State{Messages: []model.Message{model.NewAssistantMessage("ok", model.Metadata{})}}))
	assert.EqualError(t, lastError(session.State{Messages: []model.Message{model.NewErrorMessage("nope")}}), "nope")
	assert.Error(t, lastError(session.State{Connection: offline.StatusOffline}))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}
