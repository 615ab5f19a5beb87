// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jeranaias/rigrun-stream/internal/model"
)

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat opens the chat event stream and calls fn for each decoded
// event. It returns nil once a terminal event has been delivered or the
// stream ends.
//
// Failures before the stream opens are returned as *Error. Failures after
// it opens are returned as *StreamError. Cancelling ctx closes the stream.
func (c *Client) StreamChat(ctx context.Context, reqBody ChatRequest, fn func(Event)) error {
	resp, err := c.openStream(ctx, http.MethodPost, "/api/chat/stream", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewSSEReader(resp.Body)
	delivered := 0
	for {
		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &StreamError{Events: delivered, Err: err}
		}

		ev, ok := decodeChatEvent(EventType(eventType), data)
		if !ok {
			c.logger.Debug().Str("event", eventType).Msg("skipping unrecognized stream event")
			continue
		}
		delivered++
		fn(ev)
		if ev.Terminal() {
			return nil
		}
	}
}

// decodeChatEvent turns a raw SSE event into an Event. Malformed payloads
// and unknown event types report false.
func decodeChatEvent(eventType EventType, data []byte) (Event, bool) {
	switch eventType {
	case EventAgent:
		var p agentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			// Plain-text progress notices are accepted as-is.
			p.Message = string(data)
		}
		return Event{Type: EventAgent, Status: p.Message}, true

	case EventAnswer:
		var r ChatResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return Event{}, false
		}
		return Event{Type: EventAnswer, Answer: &r}, true

	case EventError, EventProviderError:
		var p errorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			p = errorPayload{Message: string(data)}
		}
		return Event{Type: eventType, Err: classify(p, 0)}, true
	}
	return Event{}, false
}

// =============================================================================
// MODEL STATUS STREAM
// =============================================================================

// StreamModelStatus subscribes to status updates for a selection and calls
// fn with each update. It blocks until the stream ends, fails, or ctx is
// cancelled. A clean end of stream returns io.EOF so callers can tell it
// apart from cancellation.
func (c *Client) StreamModelStatus(ctx context.Context, sel model.Selection, fn func(model.ModelStatus)) error {
	resp, err := c.openStream(ctx, http.MethodGet, "/api/models/status/stream?"+statusQuery(sel), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewSSEReader(resp.Body)
	for {
		_, data, err := reader.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var st model.ModelStatus
		if err := json.Unmarshal(data, &st); err != nil {
			c.logger.Debug().Err(err).Msg("skipping malformed status event")
			continue
		}
		st.State = model.ParseModelState(string(st.State))
		fn(st)
	}
}

// openStream issues a request expecting an event stream.
func (c *Client) openStream(ctx context.Context, method, path string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, connectionError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return resp, nil
}
