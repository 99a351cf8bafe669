package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// SSEEvent is one parsed server-sent event from the chat stream. All chat
// events are data-only: the payload is a JSON object whose "type" field
// identifies the event.
type SSEEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ParseSSEEvents parses a data-only SSE stream into structured events.
//
// Per the SSE format, each event is a "data: " line followed by a blank
// line. Comment lines starting with ":" are ignored. Multiple data lines in
// one event are joined with newline before JSON decoding.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var events []SSEEvent
	var dataLines []string
	lineNum := 0

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if len(dataLines) == 0 {
				continue
			}
			payload := strings.Join(dataLines, "\n")
			dataLines = nil

			var ev SSEEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				t.Fatalf("SSE parse error at line %d: invalid JSON payload %q: %v", lineNum, payload, err)
			}
			if ev.Type == "" {
				t.Fatalf("SSE parse error at line %d: payload %q has no type field", lineNum, payload)
			}
			events = append(events, ev)

		case strings.HasPrefix(line, ":"):
			// comment, ignore

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	if len(dataLines) > 0 {
		t.Fatalf("SSE stream ended without blank-line terminator for %q", strings.Join(dataLines, "\n"))
	}

	return events
}

// ChunkText concatenates the content of all chunk events, which per the
// stream contract equals the full generated response.
func ChunkText(events []SSEEvent) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Type == "chunk" {
			sb.WriteString(e.Content)
		}
	}
	return sb.String()
}

// Terminal returns the single terminal event (done or error) and fails the
// test if the stream has none or more than one.
func Terminal(t *testing.T, events []SSEEvent) SSEEvent {
	t.Helper()

	var terminals []SSEEvent
	for _, e := range events {
		if e.Type == "done" || e.Type == "error" {
			terminals = append(terminals, e)
		}
	}
	if len(terminals) != 1 {
		t.Fatalf("expected exactly one terminal event, got %d: %+v", len(terminals), terminals)
	}
	if last := events[len(events)-1]; last != terminals[0] {
		t.Fatalf("terminal event is not last in stream: last=%+v terminal=%+v", last, terminals[0])
	}
	return terminals[0]
}
