package testutil

import "testing"

func TestParseSSEEvents(t *testing.T) {
	body := "data: {\"type\":\"sessionId\",\"sessionId\":\"abc\"}\n\n" +
		"data: {\"type\":\"chunk\",\"content\":\"Hel\"}\n\n" +
		": keepalive comment\n" +
		"data: {\"type\":\"chunk\",\"content\":\"lo\"}\n\n" +
		"data: {\"type\":\"done\"}\n\n"

	events := ParseSSEEvents(t, body)

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != "sessionId" || events[0].SessionID != "abc" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if got := ChunkText(events); got != "Hello" {
		t.Errorf("ChunkText = %q, want %q", got, "Hello")
	}
	if term := Terminal(t, events); term.Type != "done" {
		t.Errorf("terminal = %+v, want done", term)
	}
}

func TestParseSSEEventsError(t *testing.T) {
	body := "data: {\"type\":\"sessionId\",\"sessionId\":\"abc\"}\n\n" +
		"data: {\"type\":\"error\",\"error\":\"backend unavailable\"}\n\n"

	events := ParseSSEEvents(t, body)

	term := Terminal(t, events)
	if term.Type != "error" || term.Error != "backend unavailable" {
		t.Errorf("unexpected terminal: %+v", term)
	}
}
