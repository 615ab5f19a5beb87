// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, ClientID: "client-123", Timeout: 5 * time.Second}, zerolog.Nop())
}

func writeSSE(w http.ResponseWriter, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := ": keepalive\n" +
		"event: agent\n" +
		"data: {\"message\":\"Searching\"}\n" +
		"\n" +
		"id: 7\r\n" +
		"event: answer\r\n" +
		"data: line one\r\n" +
		"data:line two\r\n" +
		"\r\n" +
		"data: trailing"

	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "agent", typ)
	assert.Equal(t, `{"message":"Searching"}`, string(data))

	typ, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "answer", typ)
	assert.Equal(t, "line one\nline two", string(data))

	typ, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "", typ)
	assert.Equal(t, "trailing", string(data))

	_, _, err = r.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReader_EventTypeResetsWithoutData(t *testing.T) {
	r := NewSSEReader(strings.NewReader("event: agent\n\ndata: x\n\n"))
	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "", typ)
	assert.Equal(t, "x", string(data))
}

// endlessReader yields 'a' forever and counts what was read.
type endlessReader struct{ n int }

func (r *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'a'
	}
	r.n += len(p)
	return len(p), nil
}

func TestSSEReader_UnterminatedLineIsBounded(t *testing.T) {
	src := &endlessReader{}
	r := NewSSEReader(io.MultiReader(strings.NewReader("data: "), src))

	_, _, err := r.ReadEvent()
	assert.True(t, errors.Is(err, ErrEventTooLarge))
	assert.Less(t, src.n, 2*MaxEventSize, "reader stops shortly after the limit")
}

func TestSSEReader_LargeEventWithinLimit(t *testing.T) {
	payload := strings.Repeat("x", MaxEventSize-10)
	r := NewSSEReader(strings.NewReader("event: answer\ndata: " + payload + "\n\n"))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "answer", typ)
	assert.Len(t, data, len(payload))
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload errorPayload
		status  int
		want    ErrorKind
	}{
		{"explicit rate limit", errorPayload{Message: "slow down", Kind: "rate_limit"}, 0, KindRateLimit},
		{"dashed kind", errorPayload{Message: "slow down", Kind: "rate-limit"}, 0, KindRateLimit},
		{"http 429", errorPayload{Message: "nope"}, http.StatusTooManyRequests, KindRateLimit},
		{"payload status 429", errorPayload{Message: "nope", Status: 429}, 0, KindRateLimit},
		{"legacy text", errorPayload{Message: "Rate limit exceeded for model"}, 0, KindRateLimit},
		{"too many requests text", errorPayload{Message: "Too Many Requests"}, 0, KindRateLimit},
		{"rate limit beats connection", errorPayload{Message: "rate limit", IsConnectionError: true}, 0, KindRateLimit},
		{"connection flag", errorPayload{Message: "fetch failed", IsConnectionError: true}, 0, KindConnection},
		{"connection kind", errorPayload{Message: "down", Kind: "connection"}, 0, KindConnection},
		{"provider", errorPayload{Message: "context length exceeded"}, 400, KindProvider},
		{"nested message", errorPayload{Error: &struct {
			Message string `json:"message"`
			Code    any    `json:"code,omitempty"`
		}{Message: "bad model"}}, 404, KindProvider},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := classify(tc.payload, tc.status)
			assert.Equal(t, tc.want, e.Kind)
			assert.Equal(t, tc.payload.text(), e.Message)
		})
	}
}

func TestError_Is(t *testing.T) {
	err := errors.Wrap(&Error{Kind: KindRateLimit, Message: "x"}, "stream")
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsConnection(err))
	assert.True(t, errors.Is(&Error{Kind: KindProvider}, ErrProvider))
	assert.True(t, IsConnection(connectionError(io.ErrUnexpectedEOF)))
}

// =============================================================================
// STREAM CHAT TESTS
// =============================================================================

func TestStreamChat_DeliversEvents(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "client-123", r.Header.Get("X-Client-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "agent", `{"message":"Thinking"}`)
		writeSSE(w, "ping", `{}`)
		writeSSE(w, "agent", `Reading documents`)
		writeSSE(w, "answer", `{"message":"Hi","model":"llama3","provider":"local","cached":true,`+
			`"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":2,"totalTokens":5},`+
			`"metadata":{"memoryToken":"mt-1","memoryChunks":["a"]}}`)
		writeSSE(w, "agent", `{"message":"after terminal"}`)
	})

	req := ChatRequest{
		Message:                 "hello",
		MemoryToken:             "mt-0",
		DisableLongMemoryRecall: true,
		SystemPrompt:            "be brief",
		UnloadAfterCall:         true,
		SessionID:               "sess_1",
		ProviderID:              "local",
		ModelID:                 "llama3",
	}
	var events []Event
	err := client.StreamChat(context.Background(), req, func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)

	assert.Equal(t, req, got)
	require.Len(t, events, 3, "unknown events skipped, nothing after terminal")
	assert.Equal(t, EventAgent, events[0].Type)
	assert.Equal(t, "Thinking", events[0].Status)
	assert.Equal(t, "Reading documents", events[1].Status)

	ans := events[2]
	require.True(t, ans.Terminal())
	require.NotNil(t, ans.Answer)
	assert.Equal(t, "Hi", ans.Answer.Message)
	assert.True(t, ans.Answer.Cached)
	assert.Equal(t, 5, ans.Answer.Usage.TotalTokens)
	assert.Equal(t, model.MemoryRecord{Token: "mt-1", Chunks: []string{"a"}}, ans.Answer.Memory())
	assert.Equal(t, "llama3", ans.Answer.MessageMetadata().Model)
}

func TestStreamChat_ErrorEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "provider-error", `{"message":"Rate limit reached"}`)
	})
	var ev Event
	require.NoError(t, client.StreamChat(context.Background(), ChatRequest{Message: "x"}, func(e Event) { ev = e }))
	require.NotNil(t, ev.Err)
	assert.Equal(t, EventProviderError, ev.Type)
	assert.Equal(t, KindRateLimit, ev.Err.Kind)
	assert.Equal(t, "Rate limit reached", ev.Err.Message)
}

func TestStreamChat_EndsWithoutTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "agent", `{"message":"working"}`)
	})
	count := 0
	err := client.StreamChat(context.Background(), ChatRequest{Message: "x"}, func(Event) { count++ })
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStreamChat_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"429", http.StatusTooManyRequests, `{"message":"slow"}`, KindRateLimit, "slow"},
		{"500 json", http.StatusInternalServerError, `{"message":"upstream exploded"}`, KindProvider, "upstream exploded"},
		{"502 text", http.StatusBadGateway, "bad gateway from proxy", KindProvider, "bad gateway from proxy"},
		{"empty body", http.StatusServiceUnavailable, "", KindProvider, "Service Unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			err := client.StreamChat(context.Background(), ChatRequest{Message: "x"}, func(Event) {
				t.Error("no events expected")
			})
			var be *Error
			require.True(t, errors.As(err, &be), "got %v", err)
			assert.Equal(t, tc.kind, be.Kind)
			assert.Equal(t, tc.message, be.Message)
			assert.Equal(t, tc.status, be.Status)
		})
	}
}

func TestStreamChat_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url}, zerolog.Nop())
	err := client.StreamChat(context.Background(), ChatRequest{Message: "x"}, func(Event) {})
	assert.True(t, IsConnection(err), "got %v", err)
}

func TestStreamChat_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "agent", `{"message":"working"}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.StreamChat(ctx, ChatRequest{Message: "x"}, func(Event) { cancel() })
	}()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

// =============================================================================
// PLAIN REQUEST TESTS
// =============================================================================

func TestChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprintf(w, `{"message":"echo %s","cached":false,"provider":"openrouter"}`, req.Message)
	})
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo hi", resp.Message)
	assert.False(t, resp.Cached)
}

func TestChat_NotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateSession_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/session", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"sessionId":"sess_abc"}`))
	})
	id, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateSession_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := client.CreateSession(context.Background())
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestListDocuments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/session/sess_1/documents", r.URL.Path)
		w.Write([]byte(`{"documents":[{"id":"d1","name":"notes.pdf","size":42}]}`))
	})
	docs, err := client.ListDocuments(context.Background(), "sess_1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.pdf", docs[0].Name)
}

// =============================================================================
// MODEL STATUS TESTS
// =============================================================================

func TestFetchModelStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models/status", r.URL.Path)
		assert.Equal(t, "local", r.URL.Query().Get("providerId"))
		assert.Equal(t, "qwen", r.URL.Query().Get("modelId"))
		w.Write([]byte(`{"providerId":"local","modelId":"qwen","state":"loading","message":"warming up","timestamp":"2025-01-02T03:04:05Z"}`))
	})
	st, err := client.FetchModelStatus(context.Background(), model.Selection{ProviderID: "local", ModelID: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, model.StateLoading, st.State)
	assert.True(t, st.IsLoading())
	assert.Equal(t, "warming up", st.Message)
}

func TestStreamModelStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models/status/stream", r.URL.Path)
		writeSSE(w, "", `{"providerId":"local","modelId":"qwen","state":"LOADING","message":"loading"}`)
		writeSSE(w, "status", `not json`)
		writeSSE(w, "status", `{"providerId":"local","modelId":"qwen","state":"LOADED","message":"ok"}`)
	})

	var states []model.ModelState
	err := client.StreamModelStatus(context.Background(), model.Selection{ProviderID: "local", ModelID: "qwen"},
		func(st model.ModelStatus) { states = append(states, st.State) })
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []model.ModelState{model.StateLoading, model.StateLoaded}, states)
}
