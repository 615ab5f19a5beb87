// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// MaxEventSize is the largest single SSE event accepted.
const MaxEventSize = 1024 * 1024

// ErrEventTooLarge is returned when an event exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("sse event exceeds maximum size")

// maxLineSize bounds one line: a full event payload plus its field name.
const maxLineSize = MaxEventSize + 64

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event and returns its type (empty when the
// stream omits the event field) and data. Multiple data lines are joined
// with "\n". Comment lines and id/retry fields are ignored.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var data []byte
	hasData := false

	for {
		line, err := s.readLine()
		if errors.Is(err, ErrEventTooLarge) {
			return "", nil, err
		}
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) && hasData {
				return eventType, data, nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line dispatches the event
		if len(line) == 0 {
			if hasData {
				return eventType, data, nil
			}
			eventType = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))

		switch string(field) {
		case "event":
			eventType = string(value)
		case "data":
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			hasData = true
			if len(data) > MaxEventSize {
				return "", nil, ErrEventTooLarge
			}
		}
	}
}

// readLine reads one line, including its terminator, without buffering more
// than maxLineSize bytes.
func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineSize {
			return nil, ErrEventTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}
